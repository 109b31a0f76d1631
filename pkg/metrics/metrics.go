// Package metrics provides the Prometheus registry and scrape handler for the
// marketplace client. All metrics are defined in their respective packages
// (client, cache, filters, listings, browse) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the marketplace client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler exposing all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Cache Metrics (pkg/cache):
//   - marketplace_request_cache_hits_total{layer} (Counter): Hits by layer (memory, mirror)
//   - marketplace_request_cache_misses_total (Counter): Requests that went to the transport
//   - marketplace_request_cache_entries (Gauge): In-memory entries
//   - marketplace_request_cache_coalesced_total (Counter): Callers served by an in-flight request
//   - marketplace_request_cache_fetch_errors_total (Counter): Failed fetches (never cached)
//   - marketplace_request_cache_invalidated_total{layer} (Counter): Entries removed by pattern
//   - marketplace_request_cache_cleanup_evictions_total{layer} (Counter): Expired entries purged
//   - marketplace_request_cache_mirror_errors_total{operation} (Counter): Mirror operation errors
//
// Query Metrics (pkg/client):
//   - marketplace_query_requests_total{operation, status} (Counter): Transport calls
//   - marketplace_query_duration_seconds{operation} (Histogram): Transport call duration
//   - marketplace_query_errors_total{class} (Counter): Errors by class (network, server, client, remote, decode)
//
// Retry Metrics (pkg/client):
//   - marketplace_query_retries_total{error_class} (Counter): Retry attempts by error class
//   - marketplace_query_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - marketplace_query_retry_exhausted_total{error_class} (Counter): Queries that exhausted retries
//
// Filter Metrics (pkg/filters):
//   - marketplace_schema_cache_hits_total (Counter): Schema lookups served from cache
//   - marketplace_schema_cache_misses_total (Counter): Schema lookups that required a fetch
//   - marketplace_filter_cascade_duration_seconds (Histogram): Cascade recomputation duration
//   - marketplace_filter_cascade_errors_total (Counter): Failed cascades
//   - marketplace_filter_stale_results_total (Counter): Cascade results discarded for a newer one
//
// Listing Metrics (pkg/listings):
//   - marketplace_listing_fetches_total{outcome} (Counter): Listing pages by outcome (success, error, stale)
//   - marketplace_listings_exported_total (Counter): Listings returned by exports
//
// Session Metrics (pkg/browse):
//   - marketplace_session_hydrations_total{result} (Counter): Hydrations (applied, skipped)
//   - marketplace_aggregation_fallbacks_total (Counter): Filter applications without fresh counts
//
// Example Prometheus Queries:
//
//   # Request Cache Hit Rate
//   sum(rate(marketplace_request_cache_hits_total[5m])) /
//   (sum(rate(marketplace_request_cache_hits_total[5m])) + sum(rate(marketplace_request_cache_misses_total[5m])))
//
//   # Coalescing Ratio
//   rate(marketplace_request_cache_coalesced_total[5m]) / rate(marketplace_request_cache_misses_total[5m])
//
//   # Query Error Rate
//   rate(marketplace_query_errors_total[5m])
//
//   # P95 Cascade Latency
//   histogram_quantile(0.95, rate(marketplace_filter_cascade_duration_seconds_bucket[5m]))
//
//   # Stale Result Rate
//   rate(marketplace_listing_fetches_total{outcome="stale"}[5m])
