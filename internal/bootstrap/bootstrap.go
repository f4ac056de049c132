package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/doc-analytics/internal/config"
	"github.com/kirillkom/doc-analytics/internal/core/ports"
	"github.com/kirillkom/doc-analytics/internal/core/usecase"
	"github.com/kirillkom/doc-analytics/internal/health"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/idempotency/memory"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/idempotency/valkey"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/queue/nats"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/resilience"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/doc-analytics/internal/infrastructure/storage/s3store"
	"github.com/kirillkom/doc-analytics/internal/observability/metrics"
)

type probe struct {
	component string
	run       func(context.Context) error
}

// App is the wired API process. Collaborators become usable as their
// readiness probes succeed; see StartProbes.
type App struct {
	Config    config.Config
	Readiness *health.Tracker
	Metrics   *metrics.HTTPServerMetrics

	Ingestor ports.RecordIngestor
	Reporter ports.SentimentReporter
	Uploader ports.ObjectUploader
	Objects  ports.ObjectReader

	probes  []probe
	wg      sync.WaitGroup
	closers []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{
		Config:    cfg,
		Readiness: health.NewTracker(health.ComponentPostgres, health.ComponentBlob, health.ComponentQueue),
		Metrics:   metrics.NewHTTPServerMetrics("doc-api"),
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), app.Metrics)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	app.probes = append(app.probes, probe{component: health.ComponentPostgres, run: postgres.Probe(db)})

	blobs, err := newBlobStore(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	app.probes = append(app.probes, probe{component: health.ComponentBlob, run: blobs.EnsureBucket})

	queue, err := newQueue(cfg, executor, app.Readiness)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closers = append(app.closers, queue.Close)

	idempotency, err := newIdempotencyStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init idempotency store: %w", err)
	}
	if closer, ok := idempotency.(interface{ Close() }); ok {
		app.closers = append(app.closers, closer.Close)
	}

	records := postgres.NewRecordRepository(db)
	objects := postgres.NewObjectRepository(db)
	summary := usecase.NewSentimentSummaryUseCase(records)

	app.Ingestor = usecase.NewIngestRecordsUseCase(records, queue,
		usecase.WithIdempotencyStore(idempotency),
		usecase.WithIngestMetrics(app.Metrics),
		usecase.WithMaxBatch(cfg.IngestMaxBatch),
	)
	app.Reporter = summary
	app.Uploader = usecase.NewUploadObjectUseCase(blobs, objects, app.Readiness, app.Metrics, cfg.S3PresignTTL)
	app.Objects = usecase.NewObjectQueryUseCase(blobs, objects, cfg.S3PresignTTL)

	return app, nil
}

// StartProbes brings collaborators to ready in the background. Each probe
// retries with backoff until it succeeds or ctx ends.
func (a *App) StartProbes(ctx context.Context) {
	startProbes(ctx, &a.wg, a.Readiness, a.probes)
}

func (a *App) Close() {
	a.wg.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Worker is the wired summary worker process.
type Worker struct {
	Config    config.Config
	Readiness *health.Tracker
	Metrics   *metrics.WorkerMetrics

	Events    ports.EventSubscriber
	Refresher *usecase.RefreshSummaryUseCase

	probes  []probe
	wg      sync.WaitGroup
	closers []func()
}

func NewWorker(_ context.Context, cfg config.Config) (*Worker, error) {
	w := &Worker{
		Config:    cfg,
		Readiness: health.NewTracker(health.ComponentPostgres, health.ComponentQueue),
		Metrics:   metrics.NewWorkerMetrics("doc-worker"),
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	w.closers = append(w.closers, func() { _ = db.Close() })
	w.probes = append(w.probes, probe{component: health.ComponentPostgres, run: postgres.Probe(db)})

	queue, err := newQueue(cfg, resilience.NewExecutor(resilienceConfig(cfg), nil), w.Readiness)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	w.closers = append(w.closers, queue.Close)

	w.Events = queue
	w.Refresher = usecase.NewRefreshSummaryUseCase(
		usecase.NewSentimentSummaryUseCase(postgres.NewRecordRepository(db)),
		w.Metrics,
	)
	return w, nil
}

func (w *Worker) StartProbes(ctx context.Context) {
	startProbes(ctx, &w.wg, w.Readiness, w.probes)
}

func (w *Worker) Close() {
	w.wg.Wait()
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

func startProbes(ctx context.Context, wg *sync.WaitGroup, tracker *health.Tracker, probes []probe) {
	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			if err := tracker.Probe(ctx, p.component, p.run, health.ProbeOptions{}); err != nil {
				slog.Warn("readiness_probe_abandoned", "component", p.component, "error", err)
			}
		}(p)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	if cfg.ResilienceRetryAttempts > 0 {
		out.RetryMaxAttempts = cfg.ResilienceRetryAttempts
	}
	out.BreakerEnabled = cfg.ResilienceBreaker
	return out
}

func newBlobStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.BlobBackend)) {
	case "localfs", "local", "fs":
		return localfs.New(cfg.StoragePath, cfg.S3Bucket)
	case "s3", "":
		return s3store.New(ctx, s3store.Options{
			Endpoint:           cfg.S3Endpoint,
			Bucket:             cfg.S3Bucket,
			Region:             cfg.S3Region,
			AccessKey:          cfg.S3AccessKey,
			SecretKey:          cfg.S3SecretKey,
			ResilienceExecutor: executor,
		})
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func newQueue(cfg config.Config, executor *resilience.Executor, tracker *health.Tracker) (*nats.Queue, error) {
	return nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		OnConnectionChange: func(err error) {
			if err != nil {
				tracker.MarkFailed(health.ComponentQueue, err)
				return
			}
			tracker.MarkReady(health.ComponentQueue)
		},
	})
}

// newIdempotencyStore uses Valkey when an address is configured so keys are
// shared between API replicas, and a process-local store otherwise.
func newIdempotencyStore(ctx context.Context, cfg config.Config) (ports.IdempotencyStore, error) {
	if strings.TrimSpace(cfg.ValkeyAddr) == "" {
		slog.Info("idempotency store: in-memory (VALKEY_ADDR not set)")
		return memory.New(cfg.IdempotencyTTL), nil
	}

	store, err := valkey.New(valkey.Options{
		Address:  cfg.ValkeyAddr,
		Password: cfg.ValkeyPassword,
		TLS:      cfg.ValkeyTLS,
		TTL:      cfg.IdempotencyTTL,
	})
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	return store, nil
}

