// Package health tracks collaborator readiness as an explicit state machine.
//
// Each component starts in StateInitializing and moves to StateReady or
// StateFailed as probes report. A failed component returns to ready on the
// next successful probe; nothing ever goes back to initializing.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateFailed       State = "failed"
)

const (
	ComponentPostgres = "postgres"
	ComponentBlob     = "blob"
	ComponentQueue    = "queue"
)

type ComponentStatus struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentStatus
	now        func() time.Time
}

func NewTracker(components ...string) *Tracker {
	t := &Tracker{
		components: make(map[string]*ComponentStatus, len(components)),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, name := range components {
		t.components[name] = &ComponentStatus{
			Name:      name,
			State:     StateInitializing,
			UpdatedAt: t.now(),
		}
	}
	return t
}

func (t *Tracker) MarkReady(name string) {
	t.transition(name, StateReady, "")
}

func (t *Tracker) MarkFailed(name string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	t.transition(name, StateFailed, msg)
}

func (t *Tracker) transition(name string, to State, errMessage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.components[name]
	if !ok {
		status = &ComponentStatus{Name: name, State: StateInitializing}
		t.components[name] = status
	}
	from := status.State
	status.State = to
	status.Error = errMessage
	status.UpdatedAt = t.now()

	if from != to {
		slog.Info("component_state_change", "component", name, "from", string(from), "to", string(to), "error", errMessage)
	}
}

// State reports the state of a component. Unregistered components are
// reported as initializing.
func (t *Tracker) State(name string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.components[name]
	if !ok {
		return StateInitializing
	}
	return status.State
}

func (t *Tracker) IsReady(name string) bool {
	return t.State(name) == StateReady
}

// Ready is true once every registered component is ready.
func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, status := range t.components {
		if status.State != StateReady {
			return false
		}
	}
	return true
}

func (t *Tracker) Snapshot() []ComponentStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ComponentStatus, 0, len(t.components))
	for _, status := range t.components {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type ProbeOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// FailAfter is the number of consecutive failed attempts after which the
	// component is reported as failed. Probing continues afterwards.
	FailAfter int
}

func (o ProbeOptions) normalize() ProbeOptions {
	out := o
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = 500 * time.Millisecond
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = 10 * time.Second
		if out.MaxBackoff < out.InitialBackoff {
			out.MaxBackoff = out.InitialBackoff
		}
	}
	if out.FailAfter <= 0 {
		out.FailAfter = 5
	}
	return out
}

// Probe runs fn until it succeeds or ctx ends, updating the component state
// on the way. It returns the last probe error when ctx ends first.
func (t *Tracker) Probe(ctx context.Context, name string, fn func(context.Context) error, opts ProbeOptions) error {
	opts = opts.normalize()
	backoff := opts.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			t.MarkReady(name)
			return nil
		}

		slog.Warn("readiness_probe_failed", "component", name, "attempt", attempt, "error", err)
		if attempt >= opts.FailAfter {
			t.MarkFailed(name, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		backoff *= 2
		if backoff > opts.MaxBackoff {
			backoff = opts.MaxBackoff
		}
	}
}
