// Package server exposes the catalog search cache over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/catalog-search-cache/pkg/logging"
	"github.com/Sternrassler/catalog-search-cache/pkg/metrics"
	"github.com/Sternrassler/catalog-search-cache/pkg/resolver"
)

// Upstream paths served through the cache.
const (
	UpstreamSearchPath         = "/catalogo/busca"
	UpstreamAdvancedSearchPath = "/catalogo/busca/avancada"
)

// Response headers describing the cache outcome.
const (
	HeaderCache    = "X-Cache"
	HeaderCacheKey = "X-Cache-Key"
)

const (
	defaultMaxBodyBytes = 1 << 20
	readyTimeout        = 2 * time.Second
)

// Resolver resolves a request through the cache.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Result, error)
}

// Pinger reports whether the cache store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	resolver     Resolver
	store        Pinger
	logger       zerolog.Logger
	maxBodyBytes int64
	router       chi.Router
}

// New creates the server and builds its router.
func New(res Resolver, store Pinger, logger zerolog.Logger) *Server {
	s := &Server{
		resolver:     res,
		store:        store,
		logger:       logger,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(metricsMiddleware)
	r.Use(chimw.RealIP)
	for _, mw := range logging.HTTPMiddleware(s.logger) {
		r.Use(mw)
	}
	r.Use(chimw.Recoverer)

	r.Get("/ping", s.handlePing)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/busca", s.handleSearch)
	r.Post("/busca/avancada", s.handleAdvancedSearch)

	return r
}

// NewHTTPServer wraps handler with the service's timeouts. The write timeout
// leaves room for a full upstream call.
func NewHTTPServer(addr string, handler http.Handler, upstreamTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      upstreamTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
