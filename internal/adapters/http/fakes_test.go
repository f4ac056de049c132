package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/doc-analytics/internal/config"
	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/health"
)

type ingestorFake struct {
	err     error
	calls   int
	batch   []domain.Record
	lastKey string
	block   func()
}

func (f *ingestorFake) Ingest(_ context.Context, batch []domain.Record, key string) (domain.IngestResult, error) {
	if f.block != nil {
		f.block()
	}
	f.calls++
	f.batch = batch
	f.lastKey = key
	if f.err != nil {
		return domain.IngestResult{}, f.err
	}
	return domain.IngestResult{Ingested: len(batch)}, nil
}

type reporterFake struct {
	summary domain.SentimentSummary
	err     error
}

func (f reporterFake) CurrentSummary(context.Context) (domain.SentimentSummary, error) {
	return f.summary, f.err
}

type uploaderFake struct {
	err     error
	request domain.UploadRequest
	content []byte
}

func (f *uploaderFake) Upload(_ context.Context, req domain.UploadRequest) (*domain.ObjectView, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.request = req
	f.content = raw
	return &domain.ObjectView{
		StoredObject: domain.StoredObject{
			Bucket:      "documents",
			Key:         "uploads/fixed_" + req.Filename,
			ContentType: req.ContentType,
			Size:        int64(len(raw)),
			ETag:        "etag-1",
			Source:      req.Source,
			CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		URL: "http://blob.local/documents/uploads/fixed_" + req.Filename,
	}, nil
}

type objectReaderFake struct {
	err     error
	lastKey string
}

func (f *objectReaderFake) GetObject(_ context.Context, key string) (*domain.ObjectView, error) {
	f.lastKey = key
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ObjectView{StoredObject: domain.StoredObject{Bucket: "documents", Key: key, Size: 5}}, nil
}

type routerDeps struct {
	ingestor  *ingestorFake
	reporter  reporterFake
	uploader  *uploaderFake
	objects   *objectReaderFake
	readiness ReadinessReporter
}

func newRouterDeps() *routerDeps {
	return &routerDeps{
		ingestor: &ingestorFake{},
		uploader: &uploaderFake{},
		objects:  &objectReaderFake{},
	}
}

func (d *routerDeps) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, d.ingestor, d.reporter, d.uploader, d.objects, d.readiness, nil).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newRouterDeps().handler(cfg)
}

func readyTracker(ready bool) *health.Tracker {
	tracker := health.NewTracker(health.ComponentPostgres, health.ComponentBlob)
	tracker.MarkReady(health.ComponentPostgres)
	if ready {
		tracker.MarkReady(health.ComponentBlob)
	}
	return tracker
}
