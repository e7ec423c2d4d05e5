package cache

import (
	"context"
	"errors"
	"time"
)

// Cache configuration
const (
	DefaultTTL      = 6 * time.Hour
	CleanupInterval = 1 * time.Minute
)

// ErrMiss is returned when a key is absent, expired or holds an empty value.
var ErrMiss = errors.New("cache: miss")

// Backend is a TTL key-value store for raw bytes. Implementations must be
// safe for concurrent use and return ErrMiss for absent or expired keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key and (re)starts its TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Flush removes every key owned by the backend.
	Flush(ctx context.Context) error
	Close() error
}

// Stats describes the current contents of a backend that can report them.
type Stats struct {
	CurrentSize     int64     `json:"current_size_bytes"`
	EntryCount      int       `json:"entry_count"`
	LastCleanupTime time.Time `json:"last_cleanup_time"`
}

// StatsReporter is implemented by backends that track their own size.
type StatsReporter interface {
	Stats() Stats
}

// Pinger is implemented by backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
