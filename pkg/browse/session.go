// Package browse wires the filter store and the listing coordinator into one
// category-browsing session and implements the server-render hydration
// handshake.
package browse

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/Sternrassler/marketplace-client/pkg/filters"
	"github.com/Sternrassler/marketplace-client/pkg/listings"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Payload is the data a server render fetched for the first paint.
type Payload struct {
	CategorySlug  string                       `json:"categorySlug"`
	ListingType   string                       `json:"listingType,omitempty"`
	Attributes    []catalog.ProcessedAttribute `json:"attributes"`
	TotalResults  int                          `json:"totalResults"`
	Listings      []catalog.Listing            `json:"listings"`
	ListingsTotal int                          `json:"listingsTotal"`
}

// View is a combined snapshot of a session.
type View struct {
	ID       string         `json:"id"`
	Filters  filters.State  `json:"filters"`
	Listings listings.State `json:"listings"`
}

// Session is one user's browsing session over a category.
type Session struct {
	id       string
	store    *filters.Store
	listings *listings.Coordinator
	logger   zerolog.Logger

	mu       sync.Mutex
	hydrated bool
}

// NewSession creates a session over its own filter store and listing coordinator.
func NewSession(store *filters.Store, coordinator *listings.Coordinator, logger *zerolog.Logger) *Session {
	id := uuid.NewString()
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Session{
		id:       id,
		store:    store,
		listings: coordinator,
		logger:   l.With().Str("component", "browse-session").Str("session_id", id).Logger(),
	}
}

// ID returns the session id used for log correlation.
func (s *Session) ID() string {
	return s.id
}

// HydrateFromSSR seeds both stores with server-fetched data. It must run
// before the first Load so the live-fetch guards short-circuit. Only the first
// call in the session's lifetime writes; it reports whether it did.
func (s *Session) HydrateFromSSR(p Payload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hydrated {
		Hydrations.WithLabelValues("skipped").Inc()
		return false
	}
	s.hydrated = true

	s.store.Hydrate(p.CategorySlug, p.ListingType, p.Attributes, p.TotalResults)
	s.listings.HydrateListings(p.CategorySlug, p.Listings, p.ListingsTotal, p.ListingType)
	Hydrations.WithLabelValues("applied").Inc()

	s.logger.Debug().
		Str("category", p.CategorySlug).
		Int("attributes", len(p.Attributes)).
		Int("listings", len(p.Listings)).
		Msg("Hydrated session")
	return true
}

// Load makes sure facets and listings of a category are present. Each side is
// skipped when it already holds data for that category and listing type.
func (s *Session) Load(ctx context.Context, slug, listingType string, mode catalog.ViewMode) error {
	var g errgroup.Group
	g.Go(func() error {
		if err := s.store.FetchFilterData(ctx, slug, listingType); err != nil {
			return fmt.Errorf("filters: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.listings.EnsureListings(ctx, slug, listingType, mode); err != nil {
			return fmt.Errorf("listings: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ApplyFilters runs one cascade and one listing fetch for the complete
// selection f. A failed cascade is logged and never blocks the listing
// fetch; only the listing error is returned.
func (s *Session) ApplyFilters(ctx context.Context, f catalog.AppliedFilters) error {
	slug := s.category()
	if slug == "" {
		return catalog.ErrNoCategory
	}
	f = f.Clone()
	f.CategorySlug = slug

	var g errgroup.Group
	g.Go(func() error {
		if err := s.store.UpdateFiltersWithCascading(ctx, slug, f); err != nil {
			AggregationFallbacks.Inc()
			s.logger.Warn().
				Err(err).
				Str("category", slug).
				Msg("Facet counts unavailable, applying filters to listings only")
		}
		return nil
	})
	g.Go(func() error {
		return s.listings.Fetch(ctx, slug, f, "")
	})
	return g.Wait()
}

// SelectOption sets attribute key to raw and re-applies the selection.
// Changing a brand drops the selected model and variant; changing a model
// drops the selected variant.
func (s *Session) SelectOption(ctx context.Context, key string, raw any) error {
	applied := s.store.Applied()
	if applied.CategorySlug == "" {
		return catalog.ErrNoCategory
	}

	if key == catalog.KeyLocation {
		province, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: location expects a province key, got %T", catalog.ErrInvalidFilterValue, raw)
		}
		applied.Province = province
		return s.ApplyFilters(ctx, applied)
	}

	attr, ok := catalog.FindAttribute(s.store.Snapshot().Attributes, key)
	if !ok {
		return fmt.Errorf("%w: unknown attribute %q", catalog.ErrInvalidFilterValue, key)
	}
	v, err := catalog.NewFilterValue(attr.Attribute, raw)
	if err != nil {
		return err
	}

	return s.ApplyFilters(ctx, dropDependents(applied, key).WithSpec(key, v))
}

// ClearFilter removes the selection of attribute key.
func (s *Session) ClearFilter(ctx context.Context, key string) error {
	applied := s.store.Applied()
	if key == catalog.KeyLocation {
		applied.Province = ""
		applied.City = ""
		return s.ApplyFilters(ctx, applied)
	}
	return s.ApplyFilters(ctx, dropDependents(applied, key).WithoutSpec(key))
}

// ClearAll drops every selection of the current category.
func (s *Session) ClearAll(ctx context.Context) error {
	return s.ApplyFilters(ctx, s.store.Applied().Cleared())
}

// ChangeCategory switches to another category with an empty selection.
func (s *Session) ChangeCategory(ctx context.Context, slug, listingType string, mode catalog.ViewMode) error {
	if slug == "" {
		return catalog.ErrNoCategory
	}
	s.logger.Debug().Str("category", slug).Msg("Changing category")

	f := catalog.AppliedFilters{CategorySlug: slug, ListingType: listingType}
	var g errgroup.Group
	g.Go(func() error {
		if err := s.store.UpdateFiltersWithCascading(ctx, slug, f); err != nil {
			AggregationFallbacks.Inc()
			s.logger.Warn().Err(err).Str("category", slug).Msg("Facets unavailable for new category")
		}
		return nil
	})
	g.Go(func() error {
		return s.listings.Fetch(ctx, slug, f, mode)
	})
	return g.Wait()
}

// GoToPage moves the listing window to page.
func (s *Session) GoToPage(ctx context.Context, page int) error {
	return s.listings.SetPagination(ctx, listings.PageUpdate{Page: page})
}

// SetPageSize changes the listing page size and moves back to page 1.
func (s *Session) SetPageSize(ctx context.Context, limit int) error {
	return s.listings.SetPagination(ctx, listings.PageUpdate{Limit: limit})
}

// SetViewMode switches the listing payload shape.
func (s *Session) SetViewMode(ctx context.Context, mode catalog.ViewMode) error {
	state := s.listings.Snapshot()
	if state.CategorySlug == "" {
		return catalog.ErrNoCategory
	}
	return s.listings.Fetch(ctx, state.CategorySlug, state.Applied, mode)
}

// Snapshot returns both stores' state.
func (s *Session) Snapshot() View {
	return View{
		ID:       s.id,
		Filters:  s.store.Snapshot(),
		Listings: s.listings.Snapshot(),
	}
}

func (s *Session) category() string {
	if slug := s.store.Snapshot().CategorySlug; slug != "" {
		return slug
	}
	return s.listings.Snapshot().CategorySlug
}

// dropDependents removes selections that are narrowed by key.
func dropDependents(f catalog.AppliedFilters, key string) catalog.AppliedFilters {
	switch key {
	case catalog.KeyBrand:
		return f.WithoutSpec(catalog.KeyModel).WithoutSpec(catalog.KeyVariant)
	case catalog.KeyModel:
		return f.WithoutSpec(catalog.KeyVariant)
	default:
		return f
	}
}
