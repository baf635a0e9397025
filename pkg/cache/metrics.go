package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh entries served from the store
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		},
	)

	// CacheMisses tracks lookups that went upstream, by reason
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog cache misses",
		},
		[]string{"reason"}, // "absent", "stale", "invalid"
	)

	// CacheWrites tracks successful upserts by backend
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_writes_total",
			Help: "Total number of cache entries written",
		},
		[]string{"backend"},
	)

	// CacheSwept tracks entries removed by the expiry sweeper
	CacheSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_swept_total",
			Help: "Total number of expired cache entries removed",
		},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "upsert", "sweep"
	)

	// StoreOperationDuration tracks store latency by backend and operation
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_cache_store_duration_seconds",
			Help:    "Cache store operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)
)

func observeStoreOp(backend, operation string, start time.Time) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
