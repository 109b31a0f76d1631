package filters

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// AggregationSource fetches option counts under a filter state.
type AggregationSource interface {
	ListingAggregations(ctx context.Context, f catalog.AppliedFilters) (catalog.Aggregation, error)
}

// Resolution is the facet list for one filter state.
type Resolution struct {
	Attributes   []catalog.ProcessedAttribute
	TotalResults int
	Filters      catalog.AppliedFilters
}

// Resolver computes processed attributes for a category and filter state.
type Resolver struct {
	schema *SchemaCache
	source AggregationSource
	logger zerolog.Logger
}

// NewResolver creates a resolver.
func NewResolver(schema *SchemaCache, source AggregationSource, logger *zerolog.Logger) *Resolver {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Resolver{
		schema: schema,
		source: source,
		logger: l.With().Str("component", "aggregation-resolver").Logger(),
	}
}

// Schema returns the schema cache the resolver reads from.
func (r *Resolver) Schema() *SchemaCache {
	return r.schema
}

// Resolve fetches the base schema and the aggregation counts for the complete
// filter state f in parallel and merges them. f is always the full selection,
// never a delta.
func (r *Resolver) Resolve(ctx context.Context, slug string, f catalog.AppliedFilters) (Resolution, error) {
	if slug == "" {
		return Resolution{}, ErrNoCategory
	}
	f = f.Clone()
	f.CategorySlug = slug

	start := time.Now()
	defer func() {
		CascadeDuration.Observe(time.Since(start).Seconds())
	}()

	var (
		base []catalog.Attribute
		agg  catalog.Aggregation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = r.schema.GetBaseAttributes(gctx, slug)
		return err
	})
	g.Go(func() error {
		var err error
		agg, err = r.source.ListingAggregations(gctx, f)
		if err != nil {
			return fmt.Errorf("aggregations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		CascadeErrors.Inc()
		return Resolution{}, err
	}

	attrs := Merge(base, agg)
	r.logger.Debug().
		Str("category", slug).
		Strs("specs", f.SpecKeys()).
		Int("attributes", len(attrs)).
		Int("total", agg.TotalResults).
		Msg("Resolved facets")

	return Resolution{
		Attributes:   attrs,
		TotalResults: agg.TotalResults,
		Filters:      f,
	}, nil
}
