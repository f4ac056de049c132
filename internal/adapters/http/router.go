package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/doc-analytics/internal/config"
	"github.com/kirillkom/doc-analytics/internal/core/ports"
	"github.com/kirillkom/doc-analytics/internal/health"
)

// ReadinessReporter is the view of the readiness tracker the router needs.
type ReadinessReporter interface {
	Ready() bool
	Snapshot() []health.ComponentStatus
}

// RequestMetrics instruments the handler chain and exposes a scrape endpoint.
type RequestMetrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Router struct {
	cfg       config.Config
	ingestor  ports.RecordIngestor
	reporter  ports.SentimentReporter
	uploader  ports.ObjectUploader
	objects   ports.ObjectReader
	readiness ReadinessReporter
	metrics   RequestMetrics
	schema    *ingestSchema
}

func NewRouter(
	cfg config.Config,
	ingestor ports.RecordIngestor,
	reporter ports.SentimentReporter,
	uploader ports.ObjectUploader,
	objects ports.ObjectReader,
	readiness ReadinessReporter,
	metrics RequestMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		ingestor:  ingestor,
		reporter:  reporter,
		uploader:  uploader,
		objects:   objects,
		readiness: readiness,
		metrics:   metrics,
		schema:    mustLoadIngestSchema(),
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/records", rt.ingestRecords)
	api.HandleFunc("GET /v1/analytics/sentiment", rt.sentimentSummary)
	api.HandleFunc("GET /v1/analytics/sentiment/export", rt.exportSentimentSummary)
	api.HandleFunc("POST /v1/objects", rt.uploadObject)
	api.HandleFunc("GET /v1/objects/{key...}", rt.getObject)

	// Paths served by the first version of the service.
	api.HandleFunc("POST /ingest", rt.ingestRecords)
	api.HandleFunc("POST /upload", rt.uploadObject)
	api.HandleFunc("GET /analytics/sentiment", rt.sentimentSummary)

	var limited http.Handler = api
	limited = backpressureMiddleware(limited, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait)
	limited = rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	// Health checks and metric scrapes bypass traffic control so an
	// overloaded API is not reported as dead.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /health", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/", limited)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	if rt.readiness == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	status, code := "ready", http.StatusOK
	if !rt.readiness.Ready() {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": rt.readiness.Snapshot(),
		"checked_at": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
