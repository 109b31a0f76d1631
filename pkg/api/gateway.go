package api

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Querier runs cached queries. *client.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, variables map[string]any, ttl time.Duration, out any) error
	InvalidateByPattern(ctx context.Context, pattern string) int
}

// TTLs are the request-cache lifetimes per query shape.
type TTLs struct {
	Attributes   time.Duration
	Aggregations time.Duration
	Listings     time.Duration
}

// DefaultTTLs returns the lifetimes used when none are configured.
func DefaultTTLs() TTLs {
	return TTLs{
		Attributes:   10 * time.Minute,
		Aggregations: 2 * time.Minute,
		Listings:     time.Minute,
	}
}

// Gateway maps marketplace operations onto query documents.
type Gateway struct {
	client Querier
	ttls   TTLs
	logger zerolog.Logger
}

// NewGateway creates a gateway over client. Zero TTLs fall back to DefaultTTLs.
func NewGateway(client Querier, ttls TTLs, logger *zerolog.Logger) *Gateway {
	def := DefaultTTLs()
	if ttls.Attributes <= 0 {
		ttls.Attributes = def.Attributes
	}
	if ttls.Aggregations <= 0 {
		ttls.Aggregations = def.Aggregations
	}
	if ttls.Listings <= 0 {
		ttls.Listings = def.Listings
	}

	l := log.Logger
	if logger != nil {
		l = *logger
	}

	return &Gateway{
		client: client,
		ttls:   ttls,
		logger: l.With().Str("component", "gateway").Logger(),
	}
}

// CategoryAttributes returns the structural attribute schema of a category.
func (g *Gateway) CategoryAttributes(ctx context.Context, slug string) ([]catalog.Attribute, error) {
	var data categoryAttributesData
	vars := map[string]any{"slug": slug}
	if err := g.client.Query(ctx, CategoryAttributesQuery, vars, g.ttls.Attributes, &data); err != nil {
		return nil, fmt.Errorf("category attributes %q: %w", slug, err)
	}
	return toAttributes(data.CategoryAttributes, g.logger), nil
}

// ListingAggregations returns option counts under the complete filter state f.
func (g *Gateway) ListingAggregations(ctx context.Context, f catalog.AppliedFilters) (catalog.Aggregation, error) {
	var data listingAggregationsData
	vars := map[string]any{"filter": BuildFilterInput(f)}
	if err := g.client.Query(ctx, ListingAggregationsQuery, vars, g.ttls.Aggregations, &data); err != nil {
		return catalog.Aggregation{}, fmt.Errorf("listing aggregations %q: %w", f.CategorySlug, err)
	}
	return toAggregation(data), nil
}

// SearchListings returns one page of listings in the payload shape of req.ViewMode.
func (g *Gateway) SearchListings(ctx context.Context, req catalog.SearchRequest) (catalog.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = catalog.DefaultPageLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	var data listingsSearchData
	vars := map[string]any{
		"filter": BuildFilterInput(req.Filters),
		"limit":  limit,
		"offset": offset,
	}
	if err := g.client.Query(ctx, ListingsQuery(req.ViewMode), vars, g.ttls.Listings, &data); err != nil {
		return catalog.SearchResult{}, fmt.Errorf("listings search %q: %w", req.Filters.CategorySlug, err)
	}

	result := catalog.SearchResult{
		Total:    data.ListingsSearch.Total,
		Listings: make([]catalog.Listing, 0, len(data.ListingsSearch.Items)),
	}
	for _, item := range data.ListingsSearch.Items {
		result.Listings = append(result.Listings, toListing(item))
	}
	return result, nil
}

// InvalidateByPattern drops cached queries matching pattern.
func (g *Gateway) InvalidateByPattern(ctx context.Context, pattern string) int {
	n := g.client.InvalidateByPattern(ctx, pattern)
	g.logger.Debug().Str("pattern", pattern).Int("removed", n).Msg("Invalidated queries")
	return n
}
