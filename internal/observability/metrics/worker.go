package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	eventLag        *prometheus.HistogramVec
	sentiment       *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docanalytics",
			Subsystem: "worker",
			Name:      "summary_refresh_total",
			Help:      "Total summary refreshes by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docanalytics",
			Subsystem: "worker",
			Name:      "summary_refresh_duration_seconds",
			Help:      "Summary refresh duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docanalytics",
			Subsystem: "worker",
			Name:      "summary_refresh_in_flight",
			Help:      "Number of in-flight summary refreshes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docanalytics",
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between batch commit and summary refresh start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	sentiment := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docanalytics",
			Subsystem: "sentiment",
			Name:      "records",
			Help:      "Persisted records by canonical label as of the last refresh; class \"all\" is the total.",
		},
		[]string{"service", "class"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, eventLag, sentiment)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		eventLag:        eventLag,
		sentiment:       sentiment,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRefresh() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishRefresh(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(m.service, status).Inc()
	m.processDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) SetSummary(summary domain.SentimentSummary) {
	m.sentiment.WithLabelValues(m.service, "all").Set(float64(summary.N))
	m.sentiment.WithLabelValues(m.service, string(domain.LabelPositive)).Set(float64(summary.Pos))
	m.sentiment.WithLabelValues(m.service, string(domain.LabelNegative)).Set(float64(summary.Neg))
	m.sentiment.WithLabelValues(m.service, string(domain.LabelNeutral)).Set(float64(summary.Neu))
}
