// Package upstream provides the HTTP client for the catalog search backend,
// with timeouts, error classification and an optional circuit breaker.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Sternrassler/catalog-search-cache/pkg/filter"
	"github.com/Sternrassler/catalog-search-cache/pkg/logging"
)

// Prometheus metrics for upstream calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Total upstream requests by path and status",
	}, []string{"path", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by path",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
	}, []string{"path"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	upstreamBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "upstream_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})
)

// DefaultTimeout bounds a single upstream call.
const DefaultTimeout = 20 * time.Second

// DefaultMaxResponseBytes caps how much of a response body is read.
const DefaultMaxResponseBytes = 10 << 20

// Client calls the catalog search backend.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	breaker    *gobreaker.CircuitBreaker
	config     Config
	logger     zerolog.Logger
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Name string

	// MaxRequests allowed while half-open
	MaxRequests uint32

	// Interval after which closed-state counts reset
	Interval time.Duration

	// Timeout before an open breaker goes half-open
	Timeout time.Duration

	// FailureThreshold is the failure ratio that trips the breaker
	FailureThreshold float64

	// MinRequests before the failure ratio is evaluated
	MinRequests uint32
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the catalog backend, e.g. "https://catalog.internal"
	BaseURL string

	// Timeout bounds each call (default 20s)
	Timeout time.Duration

	// UserAgent header sent with every call
	UserAgent string

	// MaxResponseBytes caps the response body size
	MaxResponseBytes int64

	// CircuitBreaker enables the breaker around calls
	CircuitBreaker bool
	Breaker        BreakerConfig
}

// DefaultBreakerConfig returns the default circuit breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "catalog-upstream",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		Timeout:          DefaultTimeout,
		UserAgent:        "catalog-search-cache/1.0",
		MaxResponseBytes: DefaultMaxResponseBytes,
		CircuitBreaker:   true,
		Breaker:          DefaultBreakerConfig(),
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}

	logger := logging.NewLogger("upstream")

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}

	if cfg.CircuitBreaker {
		c.breaker = newBreaker(cfg.Breaker, logger)
	}

	return c, nil
}

func newBreaker(cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = DefaultBreakerConfig().Name
	}
	upstreamBreakerState.WithLabelValues(cfg.Name).Set(0)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			upstreamBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return !countsAsBreakerFailure(err)
		},
	})
}

// Get calls path with filters encoded as query parameters.
func (c *Client) Get(ctx context.Context, path string, filters filter.FilterSet) (json.RawMessage, error) {
	query, err := EncodeQuery(filters)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post calls path with filters as the JSON request body.
func (c *Client) Post(ctx context.Context, path string, filters filter.FilterSet) (json.RawMessage, error) {
	if filters == nil {
		filters = filter.FilterSet{}
	}
	body, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Do performs one upstream call through the circuit breaker (when enabled)
// and returns the validated JSON body of a 2xx response.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte) (json.RawMessage, error) {
	if c.breaker == nil {
		return c.do(ctx, method, path, query, body)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, method, path, query, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			upstreamErrorsTotal.WithLabelValues(string(ErrorClassCircuitOpen)).Inc()
			upstreamRequestsTotal.WithLabelValues(path, string(ErrorClassCircuitOpen)).Inc()
			c.logger.Warn().
				Str("path", path).
				Str("state", c.breaker.State().String()).
				Msg("Upstream call rejected by circuit breaker")
			return nil, &HTTPError{
				Class:   ErrorClassCircuitOpen,
				Message: "circuit breaker rejected call",
				Err:     fmt.Errorf("%w: %w", ErrCircuitOpen, err),
			}
		}
		return nil, err
	}
	return res.(json.RawMessage), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (json.RawMessage, error) {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("path", path).
		Str("method", method).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyTransportError(ctx, err)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		upstreamRequestsTotal.WithLabelValues(path, string(class)).Inc()
		c.logger.Error().
			Err(err).
			Str("path", path).
			Str("error_class", string(class)).
			Msg("Upstream request failed")
		return nil, &HTTPError{
			Class:   class,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		class := classifyStatus(resp.StatusCode)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		io.Copy(io.Discard, io.LimitReader(resp.Body, c.config.MaxResponseBytes))

		c.logger.Warn().
			Str("path", path).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream request error")

		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		class := classifyTransportError(ctx, err)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    "read response body",
			Err:        err,
		}
	}
	if int64(len(payload)) > c.config.MaxResponseBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, c.config.MaxResponseBytes)
	}
	if !json.Valid(payload) {
		c.logger.Warn().
			Str("path", path).
			Int("bytes", len(payload)).
			Msg("Upstream returned invalid JSON")
		return nil, fmt.Errorf("%w: %s %s", ErrMalformedResponse, method, path)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Upstream request succeeded")

	return json.RawMessage(payload), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// BreakerState returns the circuit breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
