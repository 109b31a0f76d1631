package listings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for listing searches.
var (
	// ListingFetches counts listing page requests by outcome (success, error, stale)
	ListingFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_listing_fetches_total",
		Help: "Listing page requests by outcome",
	}, []string{"outcome"})

	// ExportedListings counts listings returned by exports
	ExportedListings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_listings_exported_total",
		Help: "Listings returned by full exports",
	})
)
