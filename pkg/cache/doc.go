// Package cache provides the request cache shared by every outbound marketplace query.
//
// The manager implements:
//
// - Canonical request keys (whitespace-normalized query + deep-sorted variables)
// - Coalescing of identical in-flight requests into one transport call
// - Per-entry TTLs with periodic Cleanup
// - Substring pattern invalidation across memory and the persisted mirror
// - An optional same-session mirror (Redis hash, msgpack encoded)
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.Options{DefaultTTL: time.Minute})
//
//	key := cache.CacheKey{
//		Query:     "query Attrs($slug: String!) { categoryAttributes(slug: $slug) { key } }",
//		Variables: map[string]any{"slug": "cars"},
//	}
//
//	data, err := manager.Request(ctx, key, 5*time.Minute, func(ctx context.Context) ([]byte, error) {
//		return transport.Do(ctx, key.Query, key.Variables)
//	})
//
// # Persisted Mirror
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(cache.Options{
//		Mirror: cache.NewRedisMirror(redisClient, "", 0),
//	})
//
// All entries live in a single namespaced hash; each field holds a msgpack
// record {data, timestamp, ttl}. Clear deletes the hash, pattern invalidation
// prunes it field by field.
//
// # Invalidation
//
//	// drop every cached listing search, whatever its variables
//	manager.InvalidateByPattern(ctx, "listingsSearch")
//
// A result still in flight when a matching invalidation happens is returned to
// its callers but not stored.
//
// # Metrics
//
//   - marketplace_request_cache_hits_total{layer} - Cache hits (memory, mirror)
//   - marketplace_request_cache_misses_total - Cache misses
//   - marketplace_request_cache_entries - In-memory entries
//   - marketplace_request_cache_coalesced_total - Callers served by an in-flight request
//   - marketplace_request_cache_fetch_errors_total - Failed fetches (never cached)
//   - marketplace_request_cache_invalidated_total{layer} - Pattern invalidations
//   - marketplace_request_cache_cleanup_evictions_total{layer} - Expired entries purged
//   - marketplace_request_cache_mirror_errors_total{operation} - Mirror errors
package cache
