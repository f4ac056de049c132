package ports

import (
	"context"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

// RecordIngestor is the inbound contract for batch text ingestion.
type RecordIngestor interface {
	Ingest(ctx context.Context, batch []domain.Record, idempotencyKey string) (domain.IngestResult, error)
}

// SentimentReporter computes the label breakdown over all persisted records.
type SentimentReporter interface {
	CurrentSummary(ctx context.Context) (domain.SentimentSummary, error)
}

// ObjectUploader stores an uploaded file and records its metadata.
type ObjectUploader interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.ObjectView, error)
}

// ObjectReader is the read model for stored object metadata.
type ObjectReader interface {
	GetObject(ctx context.Context, key string) (*domain.ObjectView, error)
}
