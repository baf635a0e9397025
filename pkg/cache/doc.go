// Package cache provides catalog search caching with a Redis document store.
//
// The package implements:
//
// - Deterministic cache keys (normalized filters, sorted canonical JSON, SHA-256)
// - Per-endpoint key namespaces ("GET /catalogo/busca")
// - Atomic create-or-replace of whole entries (last writer wins)
// - A sorted-set index on updated_at for cheap expiry sweeps
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create store
//	store := cache.NewRedisStore(redisClient, cache.DefaultConfig())
//
//	// Derive key
//	key, err := cache.CacheKey{
//		Namespace: cache.Namespace("GET", "/catalogo/busca"),
//		Filters:   filter.FilterSet{"termo": filter.Str("Encanador")},
//	}.Digest()
//
//	// Read
//	entry, err := store.FindByKey(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from upstream
//	}
//
// # Expiry
//
// Entries carry no Redis TTL. A Sweeper deletes everything older than the
// configured TTL on a fixed interval; readers decide freshness themselves
// with CacheEntry.IsFresh.
//
// # Metrics
//
//   - catalog_cache_hits_total - Fresh entries served
//   - catalog_cache_misses_total{reason} - Lookups that went upstream
//   - catalog_cache_writes_total{backend} - Upserts
//   - catalog_cache_swept_total - Entries removed by the sweeper
//   - catalog_cache_errors_total{operation} - Store errors
//   - catalog_cache_store_duration_seconds{backend,operation} - Store latency
package cache
