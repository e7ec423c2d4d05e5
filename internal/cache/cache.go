package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/muandane/ziria/internal/compact"
)

// Store caches base avatars. Values are kept header-stripped in the
// backend and handed back as complete PNGs.
type Store struct {
	backend Backend
	ttl     time.Duration
}

func NewStore(backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{backend: backend, ttl: ttl}
}

// Get returns the PNG stored under key, or ErrMiss. A zero-length stored
// value counts as a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrMiss
	}
	return compact.Repair(raw)
}

// Set strips encoded and stores it under key with the store TTL. Only 8x8
// RGB PNGs are accepted.
func (s *Store) Set(ctx context.Context, key string, encoded []byte) error {
	stripped, err := compact.Strip(encoded)
	if err != nil {
		return fmt.Errorf("compact %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, stripped, s.ttl); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Flush clears the whole backend.
func (s *Store) Flush(ctx context.Context) error {
	return s.backend.Flush(ctx)
}

func (s *Store) TTL() time.Duration { return s.ttl }

// Stats reports backend statistics when the backend tracks them.
func (s *Store) Stats() (Stats, bool) {
	if r, ok := s.backend.(StatsReporter); ok {
		return r.Stats(), true
	}
	return Stats{}, false
}

// Ping checks the backend connection. Backends without one always succeed.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
