// Package filters implements the faceted-filter engine: the per-category
// attribute schema cache, the cascading aggregation resolver and the filter
// store the browsing UI reads.
package filters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/catalog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultExpiration is how long a category schema is reused.
const DefaultExpiration = 5 * time.Minute

// ErrNoCategory is returned when an operation needs a category slug and got none.
var ErrNoCategory = catalog.ErrNoCategory

// SchemaSource fetches the attribute definitions of a category.
type SchemaSource interface {
	CategoryAttributes(ctx context.Context, slug string) ([]catalog.Attribute, error)
}

// SchemaOptions configures a SchemaCache.
type SchemaOptions struct {
	Expiration time.Duration
	Clock      func() time.Time
	Logger     *zerolog.Logger
}

type schemaEntry struct {
	attributes []catalog.Attribute
	cachedAt   time.Time
}

// SchemaCache holds the base attribute definitions per category. Cached
// attributes are structural only; live counts are never part of them.
type SchemaCache struct {
	source     SchemaSource
	expiration time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu      sync.Mutex
	entries map[string]schemaEntry
	gen     uint64
	flights singleflight.Group
}

// NewSchemaCache creates a schema cache over source.
func NewSchemaCache(source SchemaSource, opts SchemaOptions) *SchemaCache {
	c := &SchemaCache{
		source:     source,
		expiration: opts.Expiration,
		now:        opts.Clock,
		entries:    make(map[string]schemaEntry),
	}
	if c.expiration <= 0 {
		c.expiration = DefaultExpiration
	}
	if c.now == nil {
		c.now = time.Now
	}
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	c.logger = l.With().Str("component", "schema-cache").Logger()
	return c
}

// GetBaseAttributes returns the attribute schema of slug. A cached schema is a
// hit while now - cachedAt < expiration; concurrent misses share one fetch.
func (c *SchemaCache) GetBaseAttributes(ctx context.Context, slug string) ([]catalog.Attribute, error) {
	if slug == "" {
		return nil, ErrNoCategory
	}

	c.mu.Lock()
	entry, ok := c.entries[slug]
	startGen := c.gen
	c.mu.Unlock()

	if ok && c.now().Sub(entry.cachedAt) < c.expiration {
		SchemaCacheHits.Inc()
		return cloneAttributes(entry.attributes), nil
	}
	SchemaCacheMisses.Inc()

	ch := c.flights.DoChan(slug, func() (any, error) {
		attrs, err := c.source.CategoryAttributes(context.WithoutCancel(ctx), slug)
		if err != nil {
			return nil, err
		}

		structural := make([]catalog.Attribute, len(attrs))
		for i, a := range attrs {
			structural[i] = a.Structural()
		}

		c.mu.Lock()
		if c.gen == startGen {
			c.entries[slug] = schemaEntry{attributes: structural, cachedAt: c.now()}
		}
		c.mu.Unlock()

		c.logger.Debug().
			Str("category", slug).
			Int("attributes", len(structural)).
			Msg("Cached category schema")
		return structural, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("load schema: %w", res.Err)
		}
		return cloneAttributes(res.Val.([]catalog.Attribute)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached schema of slug.
func (c *SchemaCache) Invalidate(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, slug)
	c.gen++
}

// InvalidateAll drops every cached schema.
func (c *SchemaCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]schemaEntry)
	c.gen++
}

// Len returns the number of cached categories, expired ones included.
func (c *SchemaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneAttributes(in []catalog.Attribute) []catalog.Attribute {
	out := make([]catalog.Attribute, len(in))
	for i, a := range in {
		out[i] = a.Structural()
	}
	return out
}
