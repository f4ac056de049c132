package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/core/ports"
)

const defaultMaxBatch = 1000

type IngestRecordsUseCase struct {
	repo        ports.RecordRepository
	publisher   ports.EventPublisher
	idempotency ports.IdempotencyStore
	metrics     ports.IngestMetrics
	maxBatch    int
	now         func() time.Time
}

type IngestOption func(*IngestRecordsUseCase)

func WithIdempotencyStore(store ports.IdempotencyStore) IngestOption {
	return func(uc *IngestRecordsUseCase) { uc.idempotency = store }
}

func WithIngestMetrics(m ports.IngestMetrics) IngestOption {
	return func(uc *IngestRecordsUseCase) { uc.metrics = m }
}

func WithMaxBatch(n int) IngestOption {
	return func(uc *IngestRecordsUseCase) {
		if n > 0 {
			uc.maxBatch = n
		}
	}
}

func NewIngestRecordsUseCase(
	repo ports.RecordRepository,
	publisher ports.EventPublisher,
	opts ...IngestOption,
) *IngestRecordsUseCase {
	uc := &IngestRecordsUseCase{
		repo:      repo,
		publisher: publisher,
		metrics:   noopMetrics{},
		maxBatch:  defaultMaxBatch,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Ingest stores the whole batch in one transaction. The row store is not
// retried here; a failed batch leaves nothing behind and the caller decides
// whether to resend it.
func (uc *IngestRecordsUseCase) Ingest(
	ctx context.Context,
	batch []domain.Record,
	idempotencyKey string,
) (domain.IngestResult, error) {
	if err := uc.validate(batch); err != nil {
		uc.metrics.RecordIngestBatch("invalid", 0)
		return domain.IngestResult{}, err
	}

	key := strings.TrimSpace(idempotencyKey)
	if key != "" && uc.idempotency != nil {
		prior, err := uc.idempotency.Reserve(ctx, key)
		if err != nil {
			if domain.IsKind(err, domain.ErrConflict) {
				return domain.IngestResult{}, err
			}
			return domain.IngestResult{}, domain.WrapError(domain.ErrTemporary, "reserve idempotency key", err)
		}
		if prior != nil {
			uc.metrics.RecordIngestBatch("replayed", 0)
			return *prior, nil
		}
	} else {
		key = ""
	}

	result, err := uc.persist(ctx, batch)
	if err != nil {
		uc.metrics.RecordIngestBatch("error", 0)
		if key != "" {
			if releaseErr := uc.idempotency.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
				slog.Warn("idempotency_release_failed", "key", key, "error", releaseErr)
			}
		}
		return domain.IngestResult{}, err
	}
	uc.metrics.RecordIngestBatch("success", result.Ingested)

	// The batch is committed; a caller that went away must not leave the key
	// pending or lose the event.
	afterCommit := context.WithoutCancel(ctx)
	if key != "" {
		if err := uc.idempotency.Complete(afterCommit, key, result); err != nil {
			slog.Warn("idempotency_complete_failed", "key", key, "error", err)
		}
	}

	if result.Ingested > 0 && uc.publisher != nil {
		event := domain.RecordsIngested{Count: result.Ingested, IngestedAt: uc.now()}
		if err := uc.publisher.PublishRecordsIngested(afterCommit, event); err != nil {
			uc.metrics.RecordEventPublishFailure()
			slog.Warn("records_ingested_publish_failed", "count", result.Ingested, "error", err)
		}
	}

	return result, nil
}

func (uc *IngestRecordsUseCase) persist(ctx context.Context, batch []domain.Record) (domain.IngestResult, error) {
	if len(batch) == 0 {
		return domain.IngestResult{Ingested: 0}, nil
	}

	n, err := uc.repo.InsertBatch(ctx, batch)
	if err != nil {
		if domain.IsKind(err, domain.ErrPersistence) {
			return domain.IngestResult{}, err
		}
		return domain.IngestResult{}, domain.WrapError(domain.ErrPersistence, "insert record batch", err)
	}
	return domain.IngestResult{Ingested: n}, nil
}

func (uc *IngestRecordsUseCase) validate(batch []domain.Record) error {
	if len(batch) > uc.maxBatch {
		return domain.WrapError(domain.ErrValidation, "validate batch",
			fmt.Errorf("batch has %d records, limit is %d", len(batch), uc.maxBatch))
	}

	var problems []error
	for i, rec := range batch {
		if rec.Source == "" {
			problems = append(problems, fmt.Errorf("record %d: source is required", i))
		} else if utf8.RuneCountInString(rec.Source) > domain.MaxSourceLength {
			problems = append(problems, fmt.Errorf("record %d: source exceeds %d characters", i, domain.MaxSourceLength))
		}
		if rec.Text == "" {
			problems = append(problems, fmt.Errorf("record %d: text is required", i))
		}
		if rec.Label != nil && utf8.RuneCountInString(*rec.Label) > domain.MaxLabelLength {
			problems = append(problems, fmt.Errorf("record %d: label exceeds %d characters", i, domain.MaxLabelLength))
		}
	}
	if len(problems) > 0 {
		return domain.WrapError(domain.ErrValidation, "validate batch", errors.Join(problems...))
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) RecordIngestBatch(string, int) {}
func (noopMetrics) RecordUpload(string, int64)    {}
func (noopMetrics) RecordEventPublishFailure()    {}
