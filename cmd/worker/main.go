package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/doc-analytics/internal/bootstrap"
	"github.com/kirillkom/doc-analytics/internal/config"
	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/health"
	"github.com/kirillkom/doc-analytics/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New("doc-worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()
	worker.StartProbes(ctx)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", worker.Metrics.Handler())
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !worker.Readiness.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go func() {
		if waitReady(ctx, worker.Readiness, health.ComponentPostgres) {
			if err := worker.Refresher.Refresh(ctx); err != nil {
				logger.Warn("initial_summary_refresh_failed", "error", err)
			}
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = worker.Events.SubscribeRecordsIngested(ctx, func(handlerCtx context.Context, event domain.RecordsIngested) error {
		refreshCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()
		return worker.Refresher.HandleRecordsIngested(refreshCtx, event)
	})
	if err != nil {
		logger.Error("worker_subscribe_error", "error", err)
	}
}

func waitReady(ctx context.Context, tracker *health.Tracker, component string) bool {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for !tracker.IsReady(component) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}
