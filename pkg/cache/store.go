package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored document is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrStoreUnavailable indicates the backing store could not be reached
	ErrStoreUnavailable = errors.New("cache store unavailable")

	errNilEntry = errors.New("cache entry cannot be nil")
)

// Store is the document store behind the cache.
//
// UpsertByKey must replace the whole document atomically: a concurrent
// FindByKey observes either the previous or the new entry, never a mix.
// Concurrent upserts for the same key are last-writer-wins.
type Store interface {
	// FindByKey returns the entry for key or ErrCacheMiss.
	FindByKey(ctx context.Context, key string) (*CacheEntry, error)

	// UpsertByKey creates or fully replaces the entry for key.
	UpsertByKey(ctx context.Context, key string, entry *CacheEntry) error

	// DeleteOlderThan removes entries with UpdatedAt before threshold and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error
}

// Backend names accepted by NewStore.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and tunes a Store backend.
type Config struct {
	// Backend is "redis" (default) or "memory"
	Backend string

	// Prefix namespaces every Redis key written by the store
	Prefix string

	// QueryTimeout bounds each Redis round trip
	QueryTimeout time.Duration
}

// DefaultConfig returns the production store configuration.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendRedis,
		Prefix:       "catalog-cache",
		QueryTimeout: 5 * time.Second,
	}
}

// NewStore builds the configured backend. The Redis client is only required
// for the redis backend; the caller owns its lifecycle.
func NewStore(cfg Config, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case BackendRedis, "":
		if redisClient == nil {
			return nil, fmt.Errorf("redis client is required for the %s backend", BackendRedis)
		}
		return NewRedisStore(redisClient, cfg), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
