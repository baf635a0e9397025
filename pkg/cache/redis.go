package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// sweepBatchSize caps how many index members one script call removes.
const sweepBatchSize = 500

// sweepScript removes up to ARGV[3] entries whose index score is below
// ARGV[1]. KEYS[1] is the updated_at index, ARGV[2] the entry key prefix.
// Runs atomically, so an upsert either lands before (and is swept) or after
// (and survives with its new score).
var sweepScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local removed = 0
for _, member in ipairs(members) do
	removed = removed + redis.call('DEL', ARGV[2] .. member)
	redis.call('ZREM', KEYS[1], member)
end
return {#members, removed}
`)

// RedisStore stores cache entries as JSON documents in Redis.
//
// Layout:
//
//	<prefix>:entry:<key>   JSON encoded CacheEntry
//	<prefix>:updated_at    sorted set of keys scored by UpdatedAt (unix ms)
type RedisStore struct {
	redis        *redis.Client
	prefix       string
	queryTimeout time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store on top of redisClient.
func NewRedisStore(redisClient *redis.Client, cfg Config) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	return &RedisStore{
		redis:        redisClient,
		prefix:       cfg.Prefix,
		queryTimeout: cfg.QueryTimeout,
	}
}

func (s *RedisStore) entryPrefix() string {
	return s.prefix + ":entry:"
}

func (s *RedisStore) entryKey(key string) string {
	return s.entryPrefix() + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":updated_at"
}

func (s *RedisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.queryTimeout)
}

// FindByKey retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) FindByKey(ctx context.Context, key string) (*CacheEntry, error) {
	defer observeStoreOp(BackendRedis, "get", time.Now())

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	data, err := s.redis.Get(qctx, s.entryKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, storeError(ctx, "get", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &entry, nil
}

// UpsertByKey writes the document and its index score in one MULTI/EXEC.
func (s *RedisStore) UpsertByKey(ctx context.Context, key string, entry *CacheEntry) error {
	if entry == nil {
		return errNilEntry
	}
	defer observeStoreOp(BackendRedis, "upsert", time.Now())

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("upsert").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	_, err = s.redis.TxPipelined(qctx, func(pipe redis.Pipeliner) error {
		pipe.Set(qctx, s.entryKey(key), data, 0)
		pipe.ZAdd(qctx, s.indexKey(), redis.Z{
			Score:  float64(entry.UpdatedAt.UnixMilli()),
			Member: key,
		})
		return nil
	})
	if err != nil {
		return storeError(ctx, "upsert", err)
	}

	CacheWrites.WithLabelValues(BackendRedis).Inc()
	return nil
}

// DeleteOlderThan removes entries last refreshed before threshold.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	defer observeStoreOp(BackendRedis, "sweep", time.Now())

	cutoff := strconv.FormatInt(threshold.UnixMilli(), 10)
	var total int64

	for {
		qctx, cancel := s.queryCtx(ctx)
		res, err := sweepScript.Run(qctx, s.redis, []string{s.indexKey()}, cutoff, s.entryPrefix(), sweepBatchSize).Int64Slice()
		cancel()
		if err != nil {
			return total, storeError(ctx, "sweep", err)
		}
		if len(res) != 2 {
			return total, fmt.Errorf("redis sweep: unexpected reply %v", res)
		}

		scanned, removed := res[0], res[1]
		total += removed
		if scanned < sweepBatchSize {
			return total, nil
		}
	}
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if err := s.redis.Ping(qctx).Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// storeError wraps a failed Redis call. When the caller's context is done
// its error is returned as is: the store itself did not fail.
func storeError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	CacheErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: redis %s: %v", ErrStoreUnavailable, op, err)
}
