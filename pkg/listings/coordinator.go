// Package listings coordinates paged listing searches for a browsing session:
// it owns the listing page, the applied filters and the pagination window and
// decides which cached queries a state change invalidates.
package listings

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/marketplace-client/pkg/api"
	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/Sternrassler/marketplace-client/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultExportPageLimit is the page size used by ExportAll.
const DefaultExportPageLimit = 100

// Source runs listing searches. *api.Gateway satisfies it.
type Source interface {
	SearchListings(ctx context.Context, req catalog.SearchRequest) (catalog.SearchResult, error)
}

// Invalidator drops cached queries by pattern. *api.Gateway satisfies it.
type Invalidator interface {
	InvalidateByPattern(ctx context.Context, pattern string) int
}

// Options configures a Coordinator.
type Options struct {
	// PageLimit is the initial page size
	PageLimit int

	// ExportPageLimit is the page size of ExportAll
	ExportPageLimit int

	// Export configures the ExportAll worker pool
	Export pagination.Config

	Logger *zerolog.Logger
}

// PageUpdate is a partial pagination change. Zero fields are left unchanged.
type PageUpdate struct {
	Page  int
	Limit int
}

// State is a snapshot of the coordinator.
type State struct {
	CategorySlug string                 `json:"categorySlug"`
	ListingType  string                 `json:"listingType,omitempty"`
	Listings     []catalog.Listing      `json:"listings"`
	Applied      catalog.AppliedFilters `json:"applied"`
	Pagination   catalog.Pagination     `json:"pagination"`
	ViewMode     catalog.ViewMode       `json:"viewMode"`
	Loading      bool                   `json:"loading"`
	Error        string                 `json:"error,omitempty"`
}

// Coordinator owns the listing page of one browsing session.
//
// Every request gets a sequence number; only the latest issued request writes
// its result. A failed request clears the listings and zeroes the total.
type Coordinator struct {
	source      Source
	invalidator Invalidator
	opts        Options
	logger      zerolog.Logger

	mu       sync.Mutex
	state    State
	seq      uint64
	hydrated bool
}

// NewCoordinator creates a coordinator. invalidator may be nil when the
// source is not cached.
func NewCoordinator(source Source, invalidator Invalidator, opts Options) *Coordinator {
	if opts.ExportPageLimit <= 0 {
		opts.ExportPageLimit = DefaultExportPageLimit
	}
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	if opts.Export.Logger == nil {
		opts.Export.Logger = &l
	}

	return &Coordinator{
		source:      source,
		invalidator: invalidator,
		opts:        opts,
		logger:      l.With().Str("component", "listing-coordinator").Logger(),
		state: State{
			Pagination: catalog.NewPagination(opts.PageLimit),
			ViewMode:   catalog.ViewGrid,
		},
	}
}

// Fetch loads the first page matching f in the payload shape of mode.
//
// Switching category clears the current listings before the request is
// issued and invalidates cached listing searches and aggregations. Any filter
// change resets pagination to page 1. A view mode change invalidates cached
// listing searches only when the mode actually differs. An empty mode keeps
// the current one.
func (c *Coordinator) Fetch(ctx context.Context, slug string, f catalog.AppliedFilters, mode catalog.ViewMode) error {
	if slug == "" {
		return catalog.ErrNoCategory
	}
	f = f.Clone()
	f.CategorySlug = slug

	var patterns []string

	c.mu.Lock()
	switch {
	case c.state.CategorySlug != slug:
		if c.state.CategorySlug != "" {
			patterns = append(patterns, api.PatternListings, api.PatternAggregations)
		}
		c.state.Listings = nil
		c.state.Pagination.Reset()
	case !f.Equal(c.state.Applied):
		c.state.Pagination.Reset()
	}

	if mode == "" {
		mode = c.state.ViewMode
	}
	if mode != c.state.ViewMode && len(patterns) == 0 {
		patterns = append(patterns, api.PatternListings)
	}

	c.state.CategorySlug = slug
	c.state.ListingType = f.ListingType
	c.state.Applied = f
	c.state.ViewMode = mode
	seq, req := c.beginLocked()
	c.mu.Unlock()

	c.invalidate(ctx, patterns)
	return c.run(ctx, seq, req)
}

// SetPagination applies a partial pagination change and fetches the
// resulting page. A page-only change invalidates cached listing searches; a
// limit change moves back to page 1.
func (c *Coordinator) SetPagination(ctx context.Context, u PageUpdate) error {
	var patterns []string

	c.mu.Lock()
	if c.state.CategorySlug == "" {
		c.mu.Unlock()
		return catalog.ErrNoCategory
	}

	p := &c.state.Pagination
	switch {
	case u.Limit > 0 && u.Limit != p.Limit:
		p.Limit = u.Limit
		p.Page = 1
	case u.Page > 0 && u.Page != p.Page:
		p.Page = u.Page
		patterns = append(patterns, api.PatternListings)
	default:
		c.mu.Unlock()
		return nil
	}
	seq, req := c.beginLocked()
	c.mu.Unlock()

	c.invalidate(ctx, patterns)
	return c.run(ctx, seq, req)
}

// Refresh re-fetches the current page past the request cache.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state.CategorySlug == "" {
		c.mu.Unlock()
		return catalog.ErrNoCategory
	}
	seq, req := c.beginLocked()
	c.mu.Unlock()

	c.invalidate(ctx, []string{api.PatternListings})
	return c.run(ctx, seq, req)
}

// EnsureListings fetches the first unfiltered page unless the coordinator
// already holds listings for that category and listing type.
func (c *Coordinator) EnsureListings(ctx context.Context, slug, listingType string, mode catalog.ViewMode) error {
	c.mu.Lock()
	if c.state.CategorySlug == slug && c.state.ListingType == listingType && c.state.Error == "" {
		c.mu.Unlock()
		c.logger.Debug().Str("category", slug).Msg("Listings already loaded")
		return nil
	}
	c.mu.Unlock()

	return c.Fetch(ctx, slug, catalog.AppliedFilters{CategorySlug: slug, ListingType: listingType}, mode)
}

// HydrateListings seeds the coordinator with server-fetched listings. Only
// the first call in the coordinator's lifetime writes; it reports whether it did.
func (c *Coordinator) HydrateListings(slug string, listings []catalog.Listing, total int, listingType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hydrated {
		return false
	}
	c.hydrated = true

	page := catalog.NewPagination(c.state.Pagination.Limit)
	page.Recompute(total, len(listings))

	ls := make([]catalog.Listing, len(listings))
	copy(ls, listings)
	c.state = State{
		CategorySlug: slug,
		ListingType:  listingType,
		Listings:     ls,
		Applied:      catalog.AppliedFilters{CategorySlug: slug, ListingType: listingType},
		Pagination:   page,
		ViewMode:     c.state.ViewMode,
	}

	c.logger.Debug().
		Str("category", slug).
		Int("listings", len(ls)).
		Int("total", total).
		Msg("Hydrated listings")
	return true
}

// ExportAll fetches every listing matching f in the full payload shape. Pages
// are fetched in parallel with bounded concurrency and returned in order.
// Coordinator state is not touched.
func (c *Coordinator) ExportAll(ctx context.Context, slug string, f catalog.AppliedFilters) ([]catalog.Listing, error) {
	if slug == "" {
		return nil, catalog.ErrNoCategory
	}
	f = f.Clone()
	f.CategorySlug = slug
	limit := c.opts.ExportPageLimit

	fetch := pagination.PageFetcherFunc[catalog.Listing](func(ctx context.Context, page int) ([]catalog.Listing, int, error) {
		res, err := c.source.SearchListings(ctx, catalog.SearchRequest{
			Filters:  f,
			Limit:    limit,
			Offset:   (page - 1) * limit,
			ViewMode: catalog.ViewFull,
		})
		if err != nil {
			return nil, 0, err
		}
		return res.Listings, (res.Total + limit - 1) / limit, nil
	})

	out, err := pagination.NewBatchFetcher[catalog.Listing](fetch, c.opts.Export).FetchAll(ctx)
	ExportedListings.Add(float64(len(out)))
	if err != nil {
		return out, fmt.Errorf("export %q: %w", slug, err)
	}

	c.logger.Info().
		Str("category", slug).
		Int("listings", len(out)).
		Msg("Exported listings")
	return out, nil
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.state
	out.Listings = make([]catalog.Listing, len(c.state.Listings))
	copy(out.Listings, c.state.Listings)
	out.Applied = c.state.Applied.Clone()
	return out
}

// beginLocked issues a new sequence number and the request for the current
// state. c.mu must be held.
func (c *Coordinator) beginLocked() (uint64, catalog.SearchRequest) {
	c.seq++
	c.state.Loading = true
	return c.seq, catalog.SearchRequest{
		Filters:  c.state.Applied.Clone(),
		Limit:    c.state.Pagination.Limit,
		Offset:   c.state.Pagination.Offset(),
		ViewMode: c.state.ViewMode,
	}
}

func (c *Coordinator) run(ctx context.Context, seq uint64, req catalog.SearchRequest) error {
	res, err := c.source.SearchListings(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		ListingFetches.WithLabelValues("stale").Inc()
		c.logger.Debug().
			Str("category", req.Filters.CategorySlug).
			Uint64("seq", seq).
			Uint64("latest", c.seq).
			Msg("Discarding stale listing page")
		return err
	}

	c.state.Loading = false
	if err != nil {
		ListingFetches.WithLabelValues("error").Inc()
		c.state.Listings = nil
		c.state.Pagination.Total = 0
		c.state.Pagination.HasMore = false
		c.state.Error = err.Error()
		c.logger.Warn().
			Err(err).
			Str("category", req.Filters.CategorySlug).
			Int("offset", req.Offset).
			Msg("Listing fetch failed")
		return err
	}

	ListingFetches.WithLabelValues("success").Inc()
	c.state.Listings = res.Listings
	c.state.Pagination.Recompute(res.Total, len(res.Listings))
	c.state.Error = ""
	return nil
}

func (c *Coordinator) invalidate(ctx context.Context, patterns []string) {
	if c.invalidator == nil {
		return
	}
	for _, p := range patterns {
		c.invalidator.InvalidateByPattern(ctx, p)
	}
}
