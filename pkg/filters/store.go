package filters

import (
	"context"
	"sync"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is a snapshot of the filter store.
type State struct {
	CategorySlug string                       `json:"categorySlug"`
	ListingType  string                       `json:"listingType,omitempty"`
	Attributes   []catalog.ProcessedAttribute `json:"attributes"`
	TotalResults int                          `json:"totalResults"`
	Applied      catalog.AppliedFilters       `json:"applied"`
	Loading      bool                         `json:"loading"`
	Error        string                       `json:"error,omitempty"`
}

// Store owns the rendered facet list and the applied selection of one
// browsing session.
//
// Every cascade gets a sequence number; only the latest issued cascade writes
// its result. A failed cascade keeps the previous attributes and sets Error.
type Store struct {
	resolver *Resolver
	logger   zerolog.Logger

	mu       sync.Mutex
	state    State
	seq      uint64
	hydrated bool
}

// NewStore creates an empty filter store.
func NewStore(resolver *Resolver, logger *zerolog.Logger) *Store {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Store{
		resolver: resolver,
		logger:   l.With().Str("component", "filter-store").Logger(),
	}
}

// FetchFilterData loads the facets of a category with no selection. It does
// nothing when the store already holds that category and listing type.
func (s *Store) FetchFilterData(ctx context.Context, slug, listingType string) error {
	if slug == "" {
		return ErrNoCategory
	}

	s.mu.Lock()
	if s.state.CategorySlug == slug && s.state.ListingType == listingType && s.state.Error == "" {
		s.mu.Unlock()
		s.logger.Debug().Str("category", slug).Msg("Filter data already loaded")
		return nil
	}
	s.mu.Unlock()

	return s.UpdateFiltersWithCascading(ctx, slug, catalog.AppliedFilters{
		CategorySlug: slug,
		ListingType:  listingType,
	})
}

// UpdateFiltersWithCascading recomputes every facet against the complete
// selection f. Switching category drops the previous category's facets.
func (s *Store) UpdateFiltersWithCascading(ctx context.Context, slug string, f catalog.AppliedFilters) error {
	if slug == "" {
		return ErrNoCategory
	}
	f = f.Clone()
	f.CategorySlug = slug

	s.mu.Lock()
	s.seq++
	seq := s.seq
	if s.state.CategorySlug != slug {
		s.state.Attributes = nil
		s.state.TotalResults = 0
	}
	s.state.CategorySlug = slug
	s.state.ListingType = f.ListingType
	s.state.Applied = f
	s.state.Loading = true
	s.mu.Unlock()

	res, err := s.resolver.Resolve(ctx, slug, f)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		StaleCascades.Inc()
		s.logger.Debug().
			Str("category", slug).
			Uint64("seq", seq).
			Uint64("latest", s.seq).
			Msg("Discarding stale cascade")
		return err
	}

	s.state.Loading = false
	if err != nil {
		s.state.Error = err.Error()
		s.logger.Warn().
			Err(err).
			Str("category", slug).
			Uint64("seq", seq).
			Msg("Cascade failed, keeping previous facets")
		return err
	}

	s.state.Attributes = res.Attributes
	s.state.TotalResults = res.TotalResults
	s.state.Error = ""
	return nil
}

// Hydrate seeds the store with server-fetched facets. Only the first call in
// the store's lifetime writes; it reports whether it did.
func (s *Store) Hydrate(slug, listingType string, attributes []catalog.ProcessedAttribute, totalResults int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hydrated {
		return false
	}
	s.hydrated = true

	attrs := make([]catalog.ProcessedAttribute, len(attributes))
	copy(attrs, attributes)
	s.state = State{
		CategorySlug: slug,
		ListingType:  listingType,
		Attributes:   attrs,
		TotalResults: totalResults,
		Applied:      catalog.AppliedFilters{CategorySlug: slug, ListingType: listingType},
	}

	s.logger.Debug().
		Str("category", slug).
		Int("attributes", len(attrs)).
		Msg("Hydrated filter store")
	return true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.state
	out.Attributes = make([]catalog.ProcessedAttribute, len(s.state.Attributes))
	copy(out.Attributes, s.state.Attributes)
	out.Applied = s.state.Applied.Clone()
	return out
}

// Applied returns the current selection.
func (s *Store) Applied() catalog.AppliedFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Applied.Clone()
}
