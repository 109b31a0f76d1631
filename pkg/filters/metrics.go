package filters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the filter engine.
var (
	// SchemaCacheHits counts schema lookups served from cache
	SchemaCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_schema_cache_hits_total",
		Help: "Attribute schema lookups served from cache",
	})

	// SchemaCacheMisses counts schema lookups that required a fetch
	SchemaCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_schema_cache_misses_total",
		Help: "Attribute schema lookups that required a fetch",
	})

	// CascadeDuration tracks full cascade recomputations
	CascadeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_filter_cascade_duration_seconds",
		Help:    "Duration of one cascading filter recomputation",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	// CascadeErrors counts failed cascades
	CascadeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_filter_cascade_errors_total",
		Help: "Cascading recomputations that failed",
	})

	// StaleCascades counts results dropped because a newer cascade was issued
	StaleCascades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_filter_stale_results_total",
		Help: "Cascade results discarded in favour of a newer invocation",
	})
)
