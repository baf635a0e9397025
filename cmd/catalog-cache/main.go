package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/catalog-search-cache/pkg/cache"
	"github.com/Sternrassler/catalog-search-cache/pkg/config"
	"github.com/Sternrassler/catalog-search-cache/pkg/logging"
	"github.com/Sternrassler/catalog-search-cache/pkg/resolver"
	"github.com/Sternrassler/catalog-search-cache/pkg/server"
	"github.com/Sternrassler/catalog-search-cache/pkg/upstream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("Failed to listen")
	}

	if err := run(ctx, cfg, logger, ln); err != nil {
		logger.Fatal().Err(err).Msg("Catalog cache exited with error")
	}
}

// run wires the store, upstream client, resolver, HTTP server and sweeper,
// and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, ln net.Listener) error {
	redisClient, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		ln.Close()
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	up, err := upstream.New(cfg.Upstream)
	if err != nil {
		ln.Close()
		return fmt.Errorf("create upstream client: %w", err)
	}

	res := resolver.New(store, up, cfg.Resolver)
	srv := server.New(res, store, logging.NewLogger("server"))
	httpServer := server.NewHTTPServer(ln.Addr().String(), srv.Handler(), cfg.Upstream.Timeout)
	sweeper := cache.NewSweeper(store, cfg.Resolver.TTL, cfg.SweepInterval, logging.NewLogger("sweeper"))

	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("store_backend", cfg.Store.Backend).
		Str("upstream", cfg.Upstream.BaseURL).
		Dur("ttl", cfg.Resolver.TTL).
		Dur("upstream_timeout", cfg.Upstream.Timeout).
		Bool("circuit_breaker", cfg.Upstream.CircuitBreaker).
		Msg("Starting catalog search cache")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

// openStore builds the configured store. For the redis backend the
// connection is verified first; the service refuses to start without it.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*redis.Client, cache.Store, error) {
	if cfg.Store.Backend == cache.BackendMemory {
		logger.Warn().Msg("Using in-memory store; entries are not shared between instances")
		store, err := cache.NewStore(cfg.Store, nil)
		return nil, store, err
	}

	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, nil, err
	}

	redisClient := redis.NewClient(opts)
	if err := cache.ConnectRedis(ctx, redisClient, cache.DefaultRetryConfig()); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to Redis")

	store, err := cache.NewStore(cfg.Store, redisClient)
	if err != nil {
		redisClient.Close()
		return nil, nil, err
	}
	return redisClient, store, nil
}
