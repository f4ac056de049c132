package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/kirillkom/doc-analytics/internal/core/domain"
)

const (
	keyPrefix    = "ingest:idem:"
	pendingValue = "pending"
	// pendingTTL bounds how long a crashed request can block its key.
	pendingTTL = 2 * time.Minute
)

type Options struct {
	Address  string
	Password string
	TLS      bool
	TTL      time.Duration
}

type Store struct {
	client valkey.Client
	ttl    time.Duration
}

func New(opts Options) (*Store, error) {
	clientOpts := valkey.ClientOption{
		InitAddress:      []string{opts.Address},
		Password:         opts.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if opts.TLS {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}, nil
}

func (s *Store) Close() {
	s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *Store) Reserve(ctx context.Context, key string) (*domain.IngestResult, error) {
	k := storageKey(key)
	err := s.client.Do(ctx, s.client.B().Set().Key(k).Value(pendingValue).Nx().ExSeconds(int64(pendingTTL.Seconds())).Build()).Error()
	if err == nil {
		return nil, nil
	}
	if !valkey.IsValkeyNil(err) {
		return nil, fmt.Errorf("valkey set nx: %w", err)
	}

	value, err := s.client.Do(ctx, s.client.B().Get().Key(k).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			// Released or expired between SET and GET; the caller may retry.
			return nil, domain.WrapError(domain.ErrConflict, "reserve idempotency key", errors.New("key changed concurrently"))
		}
		return nil, fmt.Errorf("valkey get: %w", err)
	}
	return decodeValue(value)
}

func (s *Store) Complete(ctx context.Context, key string, result domain.IngestResult) error {
	cmd := s.client.B().Set().Key(storageKey(key)).Value(strconv.Itoa(result.Ingested)).ExSeconds(int64(s.ttl.Seconds())).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(storageKey(key)).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

func storageKey(key string) string {
	return keyPrefix + key
}

func decodeValue(value string) (*domain.IngestResult, error) {
	if value == pendingValue {
		return nil, domain.WrapError(domain.ErrConflict, "reserve idempotency key", errors.New("request with this key is still in progress"))
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("decode idempotency value %q: %w", value, err)
	}
	return &domain.IngestResult{Ingested: n}, nil
}
