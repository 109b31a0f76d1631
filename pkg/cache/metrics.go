package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, mirror)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_request_cache_hits_total",
			Help: "Total number of request cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks requests that had to go to the transport
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_request_cache_misses_total",
			Help: "Total number of request cache misses",
		},
	)

	// CacheEntries tracks the number of in-memory entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketplace_request_cache_entries",
			Help: "Current number of in-memory request cache entries",
		},
	)

	// CoalescedRequests tracks callers that shared an in-flight request
	CoalescedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_request_cache_coalesced_total",
			Help: "Total number of requests served by an identical in-flight request",
		},
	)

	// FetchErrors tracks transport failures seen by the cache (never stored)
	FetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_request_cache_fetch_errors_total",
			Help: "Total number of failed fetches issued through the request cache",
		},
	)

	// InvalidatedEntries tracks entries removed by pattern invalidation
	InvalidatedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_request_cache_invalidated_total",
			Help: "Total number of entries removed by pattern invalidation",
		},
		[]string{"layer"},
	)

	// CleanupEvictions tracks expired entries purged by Cleanup
	CleanupEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_request_cache_cleanup_evictions_total",
			Help: "Total number of expired entries purged by cleanup",
		},
		[]string{"layer"},
	)

	// MirrorErrors tracks mirror operation errors
	MirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_request_cache_mirror_errors_total",
			Help: "Total number of persisted mirror operation errors",
		},
		[]string{"operation"}, // "load", "save", "delete", "prune", "clear"
	)
)
