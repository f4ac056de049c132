package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ingestBatchesTotal    *prometheus.CounterVec
	ingestRecordsTotal    *prometheus.CounterVec
	uploadsTotal          *prometheus.CounterVec
	uploadBytes           *prometheus.HistogramVec
	publishFailuresTotal  *prometheus.CounterVec
	resilienceRetryTotal  *prometheus.CounterVec
	resilienceBreakerOpen *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docanalytics",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docanalytics",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docanalytics",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestBatchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docanalytics",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Total ingestion batches by outcome.",
		},
		[]string{"service", "status"},
	)
	ingestRecordsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docanalytics",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total records committed or rejected by outcome.",
		},
		[]string{"service", "status"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docanalytics",
			Subsystem: "upload",
			Name:      "objects_total",
			Help:      "Total object uploads by outcome.",
		},
		[]string{"service", "status"},
	)
	uploadBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docanalytics",
			Subsystem: "upload",
			Name:      "object_bytes",
			Help:      "Size distribution of stored objects.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"service"},
	)
	publishFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docanalytics",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Ingestion events that could not be published after commit.",
		},
		[]string{"service"},
	)
	resilienceRetryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docanalytics",
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried dependency calls by operation.",
		},
		[]string{"service", "operation"},
	)
	resilienceBreakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docanalytics",
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ingestBatchesTotal,
		ingestRecordsTotal,
		uploadsTotal,
		uploadBytes,
		publishFailuresTotal,
		resilienceRetryTotal,
		resilienceBreakerOpen,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		service:               service,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		ingestBatchesTotal:    ingestBatchesTotal,
		ingestRecordsTotal:    ingestRecordsTotal,
		uploadsTotal:          uploadsTotal,
		uploadBytes:           uploadBytes,
		publishFailuresTotal:  publishFailuresTotal,
		resilienceRetryTotal:  resilienceRetryTotal,
		resilienceBreakerOpen: resilienceBreakerOpen,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/objects/"):
		return "/v1/objects/{key}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordIngestBatch(status string, records int) {
	if status == "" {
		status = "unknown"
	}
	m.ingestBatchesTotal.WithLabelValues(m.service, status).Inc()
	if records > 0 {
		m.ingestRecordsTotal.WithLabelValues(m.service, status).Add(float64(records))
	}
}

func (m *HTTPServerMetrics) RecordUpload(status string, bytes int64) {
	if status == "" {
		status = "unknown"
	}
	m.uploadsTotal.WithLabelValues(m.service, status).Inc()
	if status == "success" && bytes >= 0 {
		m.uploadBytes.WithLabelValues(m.service).Observe(float64(bytes))
	}
}

func (m *HTTPServerMetrics) RecordEventPublishFailure() {
	m.publishFailuresTotal.WithLabelValues(m.service).Inc()
}

func (m *HTTPServerMetrics) ObserveRetry(operation string) {
	m.resilienceRetryTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	open := 0.0
	if state == "open" {
		open = 1
	}
	m.resilienceBreakerOpen.WithLabelValues(m.service, operation).Set(open)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
