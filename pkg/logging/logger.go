// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// HTTPMiddleware returns the request logging chain for an http.Handler:
// the logger is attached to each request context, request id, remote
// address and user agent are added as fields, and one access line is
// written per request.
//
// Handlers retrieve the request logger with hlog.FromRequest(r); fields added
// through its UpdateContext also appear on the access line.
func HTTPMiddleware(logger zerolog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		hlog.RequestIDHandler("request_id", "X-Request-Id"),
		hlog.RemoteAddrHandler("remote_addr"),
		hlog.UserAgentHandler("user_agent"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			event := hlog.FromRequest(r).Info()
			if status >= http.StatusInternalServerError {
				event = hlog.FromRequest(r).Error()
			} else if status >= http.StatusBadRequest {
				event = hlog.FromRequest(r).Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("Request handled")
		}),
	}
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss/stale, key, entry age)
//   - Upstream request flow (path, method, status)
//   - Sweeper runs (entries removed, threshold)
//
// Info: Normal operation events
//   - HTTP access lines
//   - Server and sweeper startup/shutdown
//   - Store connection established
//
// Warn: Warning conditions that don't prevent operation
//   - Upstream failures and malformed upstream bodies
//   - Unreadable cache entries (treated as a miss)
//   - Circuit breaker state changes
//   - Store connection retries at startup
//
// Error: Error conditions requiring attention
//   - Store read/write failures during a request
//   - Failed sweeps
//   - Configuration errors
//
// Context Fields:
//   - component: resolver, upstream, store, sweeper, server
//   - key: derived cache key
//   - namespace: upstream method and path ("GET /catalogo/busca")
//   - path: upstream or request path
//   - status_code: HTTP status code
//   - duration: Request duration
//   - error_class: Upstream error classification (client, server, network, timeout, canceled, circuit_open)
//   - request_id: X-Request-Id of the inbound request
