package usecase

import (
	"context"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/core/ports"
)

type SentimentSummaryUseCase struct {
	repo ports.RecordRepository
}

func NewSentimentSummaryUseCase(repo ports.RecordRepository) *SentimentSummaryUseCase {
	return &SentimentSummaryUseCase{repo: repo}
}

// CurrentSummary recomputes the breakdown from every persisted record on
// each call.
func (uc *SentimentSummaryUseCase) CurrentSummary(ctx context.Context) (domain.SentimentSummary, error) {
	rows, err := uc.repo.ListLabeled(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrPersistence) {
			return domain.SentimentSummary{}, err
		}
		return domain.SentimentSummary{}, domain.WrapError(domain.ErrPersistence, "list labeled records", err)
	}
	return domain.Summarize(rows), nil
}
