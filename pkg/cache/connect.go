package cache

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RetryConfig holds the configuration for the startup connectivity check.
type RetryConfig struct {
	// MaxAttempts is the maximum number of pings (including the first one).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default startup retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ConnectRedis pings Redis until it answers or the attempts are exhausted.
// The service must not start without its store, so callers treat the
// returned error as fatal.
func ConnectRedis(ctx context.Context, redisClient *redis.Client, config RetryConfig) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = redisClient.Ping(ctx).Err()
		if lastErr == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Redis reachable after retry")
			}
			return nil
		}

		if attempt >= config.MaxAttempts {
			break
		}

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

		log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Redis ping failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrStoreUnavailable, config.MaxAttempts, lastErr)
}
