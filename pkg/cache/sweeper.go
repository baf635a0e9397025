package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the sweeper deletes expired entries.
const DefaultSweepInterval = time.Minute

// Sweeper periodically deletes entries older than the TTL.
//
// It races freely with upserts. Losing that race only means the next read
// misses and refreshes.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store Store, ttl, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// SweepOnce deletes every entry with UpdatedAt before now - TTL.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	threshold := s.now().UTC().Add(-s.ttl)

	removed, err := s.store.DeleteOlderThan(ctx, threshold)
	if err != nil {
		return removed, err
	}

	CacheSwept.Add(float64(removed))
	s.logger.Debug().
		Int64("removed", removed).
		Time("threshold", threshold).
		Msg("Expired cache entries swept")

	return removed, nil
}

// Run sweeps every interval until ctx is cancelled. Errors are logged and
// the next tick tries again.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("ttl", s.ttl).
		Msg("Expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Expiry sweep failed")
			}
		}
	}
}
