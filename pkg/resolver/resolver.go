// Package resolver implements the read-through path: serve a fresh cached
// payload when one exists, otherwise fetch from upstream and store the result.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-search-cache/pkg/cache"
	"github.com/Sternrassler/catalog-search-cache/pkg/filter"
	"github.com/Sternrassler/catalog-search-cache/pkg/logging"
	"github.com/Sternrassler/catalog-search-cache/pkg/upstream"
)

var (
	// ErrUpstreamUnavailable means the upstream call failed (timeout,
	// connection error or non-2xx status). No stale payload is served.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedUpstreamResponse means upstream answered 2xx with a body
	// that is not JSON. Such bodies are never cached.
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")

	// ErrStoreUnavailable means the cache store could not be read or written.
	ErrStoreUnavailable = errors.New("cache store unavailable")

	// ErrInvalidFilters means a filter value could not be canonicalized.
	ErrInvalidFilters = errors.New("invalid filters")

	// ErrInvalidRequest means the request names no path or an unknown method.
	ErrInvalidRequest = errors.New("invalid resolve request")
)

// DefaultWriteTimeout bounds the store write after a successful fetch.
const DefaultWriteTimeout = 5 * time.Second

// Upstream is the source of truth behind the cache.
type Upstream interface {
	Get(ctx context.Context, path string, filters filter.FilterSet) (json.RawMessage, error)
	Post(ctx context.Context, path string, body filter.FilterSet) (json.RawMessage, error)
}

// Method is the upstream HTTP method.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Request describes one resolve call.
type Request struct {
	// Filters are the cache key input; for GET they are also the query.
	Filters filter.FilterSet

	// Path is the upstream path, e.g. "/catalogo/busca".
	Path string

	Method Method

	// Body is sent for POST. When nil, Filters is sent instead.
	Body filter.FilterSet
}

// Status reports how a result was produced.
type Status string

const (
	StatusHit   Status = "HIT"
	StatusMiss  Status = "MISS"
	StatusStale Status = "STALE"
)

// Result is a resolved payload with cache metadata.
type Result struct {
	Payload   json.RawMessage
	Key       string
	Status    Status
	UpdatedAt time.Time
}

// Config holds resolver settings.
type Config struct {
	// TTL is how long an entry is served before it is refreshed.
	TTL time.Duration

	// WriteTimeout bounds the upsert that follows a fetch.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default resolver settings.
func DefaultConfig() Config {
	return Config{
		TTL:          cache.DefaultTTL,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock replaces the wall clock (for tests).
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// Resolver coordinates the store and upstream. It holds no mutable state and
// is safe for concurrent use; concurrent misses for one key may both fetch,
// and the last upsert wins.
type Resolver struct {
	store        cache.Store
	upstream     Upstream
	ttl          time.Duration
	writeTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// New creates a resolver.
func New(store cache.Store, up Upstream, cfg Config, opts ...Option) *Resolver {
	if store == nil {
		panic("resolver: store cannot be nil")
	}
	if up == nil {
		panic("resolver: upstream cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = cache.DefaultTTL
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	r := &Resolver{
		store:        store,
		upstream:     up,
		ttl:          cfg.TTL,
		writeTimeout: cfg.WriteTimeout,
		now:          time.Now,
		logger:       logging.NewLogger("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the configured freshness window.
func (r *Resolver) TTL() time.Duration {
	return r.ttl
}

// Resolve returns the payload for req, from the cache when a fresh entry
// exists and from upstream otherwise. If ctx ends before the lookup or the
// upstream call completes, ctx.Err() is returned unwrapped.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	now := r.now().UTC()

	method := Method(strings.ToUpper(string(req.Method)))
	if method != MethodGet && method != MethodPost {
		return nil, fmt.Errorf("%w: method %q", ErrInvalidRequest, req.Method)
	}
	if req.Path == "" {
		return nil, fmt.Errorf("%w: empty upstream path", ErrInvalidRequest)
	}

	namespace := cache.Namespace(string(method), req.Path)
	key, err := cache.CacheKey{Namespace: namespace, Filters: req.Filters}.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilters, err)
	}

	logger := r.logger.With().Str("key", key).Str("namespace", namespace).Logger()

	status := StatusMiss
	entry, err := r.store.FindByKey(ctx, key)
	switch {
	case err == nil:
		if entry.IsFresh(now, r.ttl) {
			cache.CacheHits.Inc()
			logger.Debug().Dur("age", entry.Age(now)).Msg("Cache hit")
			return &Result{
				Payload:   entry.Payload,
				Key:       key,
				Status:    StatusHit,
				UpdatedAt: entry.UpdatedAt,
			}, nil
		}
		status = StatusStale
		cache.CacheMisses.WithLabelValues("stale").Inc()
		logger.Debug().Dur("age", entry.Age(now)).Msg("Cache entry stale")
	case errors.Is(err, cache.ErrCacheMiss):
		cache.CacheMisses.WithLabelValues("absent").Inc()
		logger.Debug().Msg("Cache miss")
	case errors.Is(err, cache.ErrInvalidEntry):
		cache.CacheMisses.WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Msg("Discarding unreadable cache entry")
	case ctx.Err() != nil:
		logger.Debug().Err(err).Msg("Request abandoned during cache lookup")
		return nil, ctx.Err()
	default:
		logger.Error().Err(err).Msg("Cache lookup failed")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	payload, err := r.fetch(ctx, method, req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Err(err).Msg("Request abandoned during upstream call")
			return nil, ctx.Err()
		}
		if errors.Is(err, upstream.ErrMalformedResponse) {
			logger.Warn().Err(err).Msg("Upstream returned malformed response")
			return nil, fmt.Errorf("%w: %w", ErrMalformedUpstreamResponse, err)
		}
		logger.Warn().
			Err(err).
			Str("error_class", string(upstream.ClassOf(err))).
			Msg("Upstream refresh failed")
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if !json.Valid(payload) {
		logger.Warn().Msg("Upstream returned malformed response")
		return nil, fmt.Errorf("%w: body is not JSON", ErrMalformedUpstreamResponse)
	}

	fresh := &cache.CacheEntry{
		Key:       key,
		Namespace: namespace,
		Filters:   filter.Normalize(req.Filters),
		Payload:   payload,
		UpdatedAt: now,
	}

	// An abandoned caller must not abort the write.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if err := r.store.UpsertByKey(writeCtx, key, fresh); err != nil {
		logger.Error().Err(err).Msg("Cache write failed")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	logger.Debug().Str("status", string(status)).Msg("Cache refreshed")

	return &Result{
		Payload:   payload,
		Key:       key,
		Status:    status,
		UpdatedAt: now,
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, method Method, req Request) (json.RawMessage, error) {
	if method == MethodGet {
		return r.upstream.Get(ctx, req.Path, req.Filters)
	}
	body := req.Body
	if body == nil {
		body = req.Filters
	}
	return r.upstream.Post(ctx, req.Path, body)
}
