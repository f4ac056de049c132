package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
	"github.com/kirillkom/doc-analytics/internal/core/ports"
)

// RefreshSummaryUseCase recomputes the sentiment summary when ingestion
// events arrive and hands the result to an observer.
type RefreshSummaryUseCase struct {
	reporter ports.SentimentReporter
	observer ports.SummaryObserver
	now      func() time.Time
}

func NewRefreshSummaryUseCase(reporter ports.SentimentReporter, observer ports.SummaryObserver) *RefreshSummaryUseCase {
	return &RefreshSummaryUseCase{
		reporter: reporter,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (uc *RefreshSummaryUseCase) HandleRecordsIngested(ctx context.Context, event domain.RecordsIngested) error {
	if !event.IngestedAt.IsZero() {
		uc.observer.ObserveEventLag(uc.now().Sub(event.IngestedAt))
	}
	return uc.Refresh(ctx)
}

func (uc *RefreshSummaryUseCase) Refresh(ctx context.Context) error {
	uc.observer.StartRefresh()
	start := uc.now()

	summary, err := uc.reporter.CurrentSummary(ctx)
	uc.observer.FinishRefresh(uc.now().Sub(start), err)
	if err != nil {
		return err
	}

	uc.observer.SetSummary(summary)
	slog.Debug("sentiment_summary_refreshed", "n", summary.N, "pos", summary.Pos, "neg", summary.Neg, "neu", summary.Neu)
	return nil
}
