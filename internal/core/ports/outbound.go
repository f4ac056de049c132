package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

// RecordRepository persists text records. InsertBatch is all-or-nothing.
type RecordRepository interface {
	InsertBatch(ctx context.Context, batch []domain.Record) (int, error)
	ListLabeled(ctx context.Context) ([]domain.LabeledText, error)
}

// ObjectRepository persists stored object metadata.
type ObjectRepository interface {
	Create(ctx context.Context, obj *domain.StoredObject) error
	GetByKey(ctx context.Context, bucket, key string) (*domain.StoredObject, error)
}

// BlobStore stores uploaded files.
type BlobStore interface {
	Bucket() string
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Head(ctx context.Context, key string) (domain.ObjectInfo, error)
	// PresignGet returns an empty URL when the backend cannot presign.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// EventPublisher publishes ingestion events.
type EventPublisher interface {
	PublishRecordsIngested(ctx context.Context, event domain.RecordsIngested) error
}

// EventSubscriber consumes ingestion events until ctx ends.
type EventSubscriber interface {
	SubscribeRecordsIngested(ctx context.Context, handler func(context.Context, domain.RecordsIngested) error) error
}

// IdempotencyStore remembers the outcome of keyed ingestion requests.
// Reserve returns the stored result for a completed key, domain.ErrConflict
// for a key still in flight, or (nil, nil) once the caller owns the key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (*domain.IngestResult, error)
	Complete(ctx context.Context, key string, result domain.IngestResult) error
	Release(ctx context.Context, key string) error
}

// ReadinessChecker reports collaborator readiness.
type ReadinessChecker interface {
	IsReady(component string) bool
}

// IngestMetrics observes ingestion outcomes.
type IngestMetrics interface {
	RecordIngestBatch(status string, records int)
	RecordUpload(status string, bytes int64)
	RecordEventPublishFailure()
}

// SummaryObserver receives the outcome of each background summary refresh.
type SummaryObserver interface {
	StartRefresh()
	FinishRefresh(duration time.Duration, err error)
	ObserveEventLag(lag time.Duration)
	SetSummary(summary domain.SentimentSummary)
}
