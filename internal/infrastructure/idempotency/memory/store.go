// Package memory is a single-process idempotency store used when no Valkey
// address is configured.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

const (
	pendingTTL    = 2 * time.Minute
	sweepInterval = time.Minute
)

type entry struct {
	result    *domain.IngestResult
	expiresAt time.Time
}

type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time

	lastSweep time.Time
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) Reserve(_ context.Context, key string) (*domain.IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if e.result == nil {
			return nil, domain.WrapError(domain.ErrConflict, "reserve idempotency key", errors.New("request with this key is still in progress"))
		}
		res := *e.result
		return &res, nil
	}
	s.entries[key] = entry{expiresAt: now.Add(pendingTTL)}
	return nil, nil
}

func (s *Store) sweep(now time.Time) {
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.lastSweep = now
}

func (s *Store) Complete(_ context.Context, key string, result domain.IngestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{result: &result, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
