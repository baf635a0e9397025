// Package metrics provides the Prometheus registry and documents every metric
// the catalog cache exports. Metrics are defined in their respective packages
// (cache, upstream, server) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total (Counter): Fresh entries served from the store
//   - catalog_cache_misses_total{reason} (Counter): Lookups that went upstream (absent, stale, invalid)
//   - catalog_cache_writes_total{backend} (Counter): Entries written by backend
//   - catalog_cache_swept_total (Counter): Expired entries removed by the sweeper
//   - catalog_cache_errors_total{operation} (Counter): Store errors (get, upsert, sweep)
//   - catalog_cache_store_duration_seconds{backend, operation} (Histogram): Store latency
//
// Upstream Metrics (pkg/upstream):
//   - upstream_requests_total{path, status} (Counter): Calls by path and HTTP status or error class
//   - upstream_request_duration_seconds{path} (Histogram): Call duration by path
//   - upstream_errors_total{class} (Counter): Errors by class (client, server, network, timeout, canceled, circuit_open)
//   - upstream_circuit_breaker_state{name} (Gauge): 0=closed, 1=half-open, 2=open
//
// HTTP Metrics (pkg/server):
//   - http_requests_total{route, method, status} (Counter): Requests served
//   - http_request_duration_seconds{route, method} (Histogram): Request latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Stale Refresh Share
//   rate(catalog_cache_misses_total{reason="stale"}[5m]) / rate(catalog_cache_misses_total[5m])
//
//   # Upstream Error Rate
//   sum by (class) (rate(upstream_errors_total[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(upstream_request_duration_seconds_bucket[5m]))
//
//   # Breaker Open
//   upstream_circuit_breaker_state == 2
