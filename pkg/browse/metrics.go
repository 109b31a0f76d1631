package browse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hydrations counts hydration attempts by result (applied, skipped)
	Hydrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_session_hydrations_total",
		Help: "Server-render hydration attempts by result",
	}, []string{"result"})

	// AggregationFallbacks counts filter applications that went on without facet counts
	AggregationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_aggregation_fallbacks_total",
		Help: "Filter applications that continued without fresh facet counts",
	})
)
