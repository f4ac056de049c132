package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{"reconnecting", fmt.Errorf("nats publish: %w", nats.ErrConnectionReconnecting), true, true},
		{"reconnect buffer full", nats.ErrReconnectBufExceeded, true, true},
		{"connection closed", fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed), false, true},
		{"no servers", nats.ErrNoServers, false, true},
		{"oversized event", nats.ErrMaxPayload, false, false},
		{"bad subject", nats.ErrBadSubject, false, false},
		{"cancelled", context.Canceled, false, false},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		c := classifyNATSError(tc.err)
		if c.Retryable != tc.retryable || c.RecordFailure != tc.recordFailure {
			t.Fatalf("%s: got %+v, want retryable=%v record=%v", tc.name, c, tc.retryable, tc.recordFailure)
		}
	}
}

func TestWrapPublishError(t *testing.T) {
	if err := wrapPublishError(gobreaker.ErrOpenState); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected open breaker to be temporary, got %v", err)
	}
	if err := wrapPublishError(nats.ErrConnectionClosed); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected closed connection to be temporary, got %v", err)
	}
	if err := wrapPublishError(nats.ErrMaxPayload); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected oversized event to stay permanent, got %v", err)
	}
}

type connStateFake struct {
	mu        sync.Mutex
	connected bool
	closed    bool
}

func (f *connStateFake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *connStateFake) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestWatchInitialConnectReportsOverdueConnection(t *testing.T) {
	reported := make(chan error, 1)
	timer := watchInitialConnect(&connStateFake{}, "nats://queue:4222", 10*time.Millisecond, func(err error) {
		reported <- err
	})
	defer timer.Stop()

	select {
	case err := <-reported:
		if !errors.Is(err, nats.ErrNoServers) {
			t.Fatalf("expected no-servers failure, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected overdue connection to be reported")
	}
}

func TestWatchInitialConnectSilentOnceConnected(t *testing.T) {
	reported := make(chan error, 1)
	state := &connStateFake{connected: true}
	timer := watchInitialConnect(state, "nats://queue:4222", 10*time.Millisecond, func(err error) {
		reported <- err
	})
	defer timer.Stop()

	select {
	case err := <-reported:
		t.Fatalf("expected no report for a connected client, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
