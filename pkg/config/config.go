// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xhit/go-str2duration/v2"

	"github.com/Sternrassler/catalog-search-cache/pkg/cache"
	"github.com/Sternrassler/catalog-search-cache/pkg/logging"
	"github.com/Sternrassler/catalog-search-cache/pkg/resolver"
	"github.com/Sternrassler/catalog-search-cache/pkg/upstream"
)

// ErrMissingUpstream is returned when UPSTREAM_BASE_URL is not set.
var ErrMissingUpstream = errors.New("UPSTREAM_BASE_URL is required")

// Config holds all configuration values.
type Config struct {
	// Port the HTTP server listens on
	Port string

	// RedisURL is host:port or a redis:// URL
	RedisURL string
	RedisDB  int

	Store         cache.Config
	Upstream      upstream.Config
	Resolver      resolver.Config
	SweepInterval time.Duration
	Logging       logging.Config
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup (for tests).
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	env := envReader{lookup: lookup}

	cfg := Config{
		Port:     env.str("PORT", "8080"),
		RedisURL: env.str("REDIS_URL", "localhost:6379"),
		RedisDB:  env.integer("REDIS_DB", 0),
		Store:    cache.DefaultConfig(),
		Upstream: upstream.DefaultConfig(env.str("UPSTREAM_BASE_URL", "")),
		Resolver: resolver.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
	}

	cfg.Store.Backend = strings.ToLower(env.str("STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.Prefix = env.str("STORE_PREFIX", cfg.Store.Prefix)
	cfg.Store.QueryTimeout = env.duration("STORE_QUERY_TIMEOUT", cfg.Store.QueryTimeout)

	cfg.Upstream.Timeout = env.duration("UPSTREAM_TIMEOUT", cfg.Upstream.Timeout)
	cfg.Upstream.UserAgent = env.str("USER_AGENT", cfg.Upstream.UserAgent)
	cfg.Upstream.CircuitBreaker = env.boolean("CIRCUIT_BREAKER", cfg.Upstream.CircuitBreaker)

	cfg.Resolver.TTL = env.duration("CACHE_TTL", cfg.Resolver.TTL)
	cfg.Resolver.WriteTimeout = env.duration("CACHE_WRITE_TIMEOUT", cfg.Resolver.WriteTimeout)
	cfg.SweepInterval = env.duration("SWEEP_INTERVAL", cache.DefaultSweepInterval)

	cfg.Logging.Level = logging.LogLevel(env.str("LOG_LEVEL", string(cfg.Logging.Level)))
	cfg.Logging.Pretty = env.boolean("LOG_PRETTY", cfg.Logging.Pretty)

	if err := errors.Join(append(env.errs, cfg.Validate())...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and reports every violation.
func (c Config) Validate() error {
	var errs []error
	if c.Upstream.BaseURL == "" {
		errs = append(errs, ErrMissingUpstream)
	}
	switch c.Store.Backend {
	case cache.BackendRedis, cache.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q (got %q)", cache.BackendRedis, cache.BackendMemory, c.Store.Backend))
	}
	if c.Resolver.TTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive (got %s)", c.Resolver.TTL))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be positive (got %s)", c.Upstream.Timeout))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive (got %s)", c.SweepInterval))
	}
	return errors.Join(errs...)
}

// RedisOptions builds client options from RedisURL and RedisDB. A redis://
// or rediss:// URL is parsed as such; anything else is taken as host:port.
func (c Config) RedisOptions() (*redis.Options, error) {
	if strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		if c.RedisDB != 0 {
			opts.DB = c.RedisDB
		}
		return opts, nil
	}
	return &redis.Options{
		Addr: c.RedisURL,
		DB:   c.RedisDB,
	}, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// envReader collects parse errors so Load reports all of them at once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) str(key, defaultValue string) string {
	if value, ok := e.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) integer(key string, defaultValue int) int {
	value := e.str(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (e *envReader) boolean(key string, defaultValue bool) bool {
	value := e.str(key, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

// duration accepts Go durations plus day and week units ("1d", "2w").
func (e *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := e.str(key, "")
	if value == "" {
		return defaultValue
	}
	d, err := str2duration.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
