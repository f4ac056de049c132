package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

type summaryObserverFake struct {
	started  int
	finished []error
	lags     []time.Duration
	summary  *domain.SentimentSummary
}

func (f *summaryObserverFake) StartRefresh() { f.started++ }

func (f *summaryObserverFake) FinishRefresh(_ time.Duration, err error) {
	f.finished = append(f.finished, err)
}

func (f *summaryObserverFake) ObserveEventLag(lag time.Duration) { f.lags = append(f.lags, lag) }

func (f *summaryObserverFake) SetSummary(summary domain.SentimentSummary) {
	f.summary = &summary
}

func TestRefreshSummaryPublishesCurrentBreakdown(t *testing.T) {
	repo := &recordRepoFake{rows: []domain.Record{
		{Source: "a", Text: "x", Label: label("positive")},
		{Source: "b", Text: "y", Label: label("-")},
		{Source: "c", Text: "z"},
	}}
	observer := &summaryObserverFake{}
	uc := NewRefreshSummaryUseCase(NewSentimentSummaryUseCase(repo), observer)
	now := time.Date(2026, 10, 18, 12, 0, 5, 0, time.UTC)
	uc.now = func() time.Time { return now }

	err := uc.HandleRecordsIngested(context.Background(), domain.RecordsIngested{
		Count:      3,
		IngestedAt: now.Add(-5 * time.Second),
	})
	if err != nil {
		t.Fatalf("HandleRecordsIngested() error = %v", err)
	}

	want := domain.SentimentSummary{N: 3, Pos: 1, Neg: 1, Neu: 1}
	if observer.summary == nil || *observer.summary != want {
		t.Fatalf("expected summary %+v, got %+v", want, observer.summary)
	}
	if len(observer.lags) != 1 || observer.lags[0] != 5*time.Second {
		t.Fatalf("expected one 5s lag observation, got %v", observer.lags)
	}
	if observer.started != 1 || len(observer.finished) != 1 || observer.finished[0] != nil {
		t.Fatalf("expected one successful refresh, got started=%d finished=%v", observer.started, observer.finished)
	}
}

func TestRefreshSummaryKeepsLastGaugesOnFailure(t *testing.T) {
	repo := &recordRepoFake{listErr: errors.New("connection reset")}
	observer := &summaryObserverFake{}
	uc := NewRefreshSummaryUseCase(NewSentimentSummaryUseCase(repo), observer)

	err := uc.Refresh(context.Background())
	if !domain.IsKind(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if observer.summary != nil {
		t.Fatalf("summary must not be published after a failed refresh")
	}
	if len(observer.finished) != 1 || observer.finished[0] == nil {
		t.Fatalf("expected failed refresh to be observed, got %v", observer.finished)
	}
}

func TestRefreshSummarySkipsLagWithoutTimestamp(t *testing.T) {
	observer := &summaryObserverFake{}
	uc := NewRefreshSummaryUseCase(NewSentimentSummaryUseCase(&recordRepoFake{}), observer)

	if err := uc.HandleRecordsIngested(context.Background(), domain.RecordsIngested{Count: 1}); err != nil {
		t.Fatalf("HandleRecordsIngested() error = %v", err)
	}
	if len(observer.lags) != 0 {
		t.Fatalf("expected no lag observation, got %v", observer.lags)
	}
	if observer.summary == nil || observer.summary.N != 0 {
		t.Fatalf("expected empty summary, got %+v", observer.summary)
	}
}
