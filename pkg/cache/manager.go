package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

const (
	// DefaultTTL is used when a request does not carry its own TTL
	DefaultTTL = 5 * time.Minute

	// maxInvalidationLog bounds the invalidation history kept for in-flight writes
	maxInvalidationLog = 128
)

// FetchFunc performs the transport call for a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Options configures a Manager.
type Options struct {
	// Mirror is the optional same-session persistence layer
	Mirror Mirror

	// DefaultTTL applies to requests issued with ttl <= 0
	DefaultTTL time.Duration

	// Logger defaults to the global zerolog logger
	Logger *zerolog.Logger

	// Clock is used for TTL decisions (for testing)
	Clock func() time.Time
}

// invalidation records a pattern removal so in-flight results issued before it
// are not written back.
type invalidation struct {
	gen     uint64
	pattern string // empty means everything
}

// Manager deduplicates and memoizes outbound queries.
//
// Lookups go memory first, then the mirror. Identical concurrent requests share
// one transport call. Failures are never stored.
type Manager struct {
	mu          sync.Mutex
	entries     map[string]*CacheEntry
	gen         uint64
	invalidated []invalidation

	flights    singleflight.Group
	mirror     Mirror
	defaultTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewManager creates a request cache.
func NewManager(opts Options) *Manager {
	m := &Manager{
		entries:    make(map[string]*CacheEntry),
		mirror:     opts.Mirror,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Clock,
	}
	if m.defaultTTL <= 0 {
		m.defaultTTL = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	if opts.Logger != nil {
		m.logger = opts.Logger.With().Str("component", "request-cache").Logger()
	} else {
		m.logger = logging.NewLogger("request-cache")
	}
	return m
}

// Request returns the cached result for key, or runs fetch exactly once for all
// concurrent callers of the same key and stores a successful result with ttl.
// The fetch runs detached from the caller's cancellation so a departing caller
// does not fail the others waiting on it.
func (m *Manager) Request(ctx context.Context, key CacheKey, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetch function cannot be nil")
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	k := key.String()
	if data, ok := m.lookup(ctx, k); ok {
		return data, nil
	}

	m.mu.Lock()
	startGen := m.gen
	m.mu.Unlock()

	ch := m.flights.DoChan(k, func() (any, error) {
		if data, ok := m.memoryGet(k); ok {
			return data, nil
		}

		m.logger.Debug().Str("cache_key", k).Msg("Cache miss - issuing request")
		data, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			FetchErrors.Inc()
			return nil, err
		}

		m.store(ctx, k, data, ttl, startGen)
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			CoalescedRequests.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns a fresh entry without issuing a request.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	k := key.String()
	if _, ok := m.lookup(ctx, k); !ok {
		return nil, ErrCacheMiss
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[k]
	if !ok {
		return nil, ErrCacheMiss
	}
	cp := *entry
	return &cp, nil
}

// lookup checks memory, then the mirror. Mirror hits are promoted to memory.
func (m *Manager) lookup(ctx context.Context, k string) ([]byte, bool) {
	if data, ok := m.memoryGet(k); ok {
		CacheHits.WithLabelValues("memory").Inc()
		return data, true
	}

	if m.mirror == nil {
		CacheMisses.Inc()
		return nil, false
	}

	m.mu.Lock()
	loadGen := m.gen
	m.mu.Unlock()

	entry, err := m.mirror.Load(ctx, k)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			MirrorErrors.WithLabelValues("load").Inc()
			m.logger.Warn().Err(err).Str("cache_key", k).Msg("Mirror load failed")
		}
		CacheMisses.Inc()
		return nil, false
	}
	if entry.IsExpired(m.now()) {
		CacheMisses.Inc()
		return nil, false
	}

	m.mu.Lock()
	if m.invalidatedSince(k, loadGen) {
		m.mu.Unlock()
		CacheMisses.Inc()
		return nil, false
	}
	m.entries[k] = entry
	CacheEntries.Set(float64(len(m.entries)))
	m.mu.Unlock()

	CacheHits.WithLabelValues("mirror").Inc()
	return entry.Data, true
}

func (m *Manager) memoryGet(k string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[k]
	if !ok {
		return nil, false
	}
	if entry.IsExpired(m.now()) {
		delete(m.entries, k)
		CacheEntries.Set(float64(len(m.entries)))
		return nil, false
	}
	return entry.Data, true
}

// store writes a fetched result unless an invalidation matching k happened
// after the request was issued.
func (m *Manager) store(ctx context.Context, k string, data []byte, ttl time.Duration, startGen uint64) {
	entry := &CacheEntry{
		Key:       k,
		Data:      data,
		Timestamp: m.now(),
		TTL:       ttl,
	}

	m.mu.Lock()
	if m.invalidatedSince(k, startGen) {
		m.mu.Unlock()
		m.logger.Debug().Str("cache_key", k).Msg("Skipping write of result invalidated in flight")
		return
	}
	m.entries[k] = entry
	CacheEntries.Set(float64(len(m.entries)))
	writeGen := m.gen
	m.mu.Unlock()

	if m.mirror != nil {
		if err := m.mirror.Save(ctx, entry); err != nil {
			MirrorErrors.WithLabelValues("save").Inc()
			m.logger.Warn().Err(err).Str("cache_key", k).Msg("Mirror save failed")
		}

		// An invalidation that ran while the save was in flight may have
		// missed the mirrored copy.
		m.mu.Lock()
		stale := m.invalidatedSince(k, writeGen)
		m.mu.Unlock()
		if stale {
			if _, err := m.mirror.DeleteMatching(ctx, k); err != nil {
				MirrorErrors.WithLabelValues("delete").Inc()
				m.logger.Warn().Err(err).Str("cache_key", k).Msg("Mirror rollback failed")
			}
			m.logger.Debug().Str("cache_key", k).Msg("Rolled back mirror write invalidated in flight")
			return
		}
	}

	m.logger.Debug().
		Str("cache_key", k).
		Dur("ttl", ttl).
		Msg("Cached response")
}

// invalidatedSince must be called with m.mu held.
func (m *Manager) invalidatedSince(k string, startGen uint64) bool {
	if startGen == m.gen {
		return false
	}
	// History trimmed past startGen: be conservative.
	if len(m.invalidated) == 0 || m.invalidated[0].gen > startGen+1 {
		return true
	}
	for _, inv := range m.invalidated {
		if inv.gen <= startGen {
			continue
		}
		if inv.pattern == "" || strings.Contains(k, inv.pattern) {
			return true
		}
	}
	return false
}

// recordInvalidation must be called with m.mu held.
func (m *Manager) recordInvalidation(pattern string) {
	m.gen++
	m.invalidated = append(m.invalidated, invalidation{gen: m.gen, pattern: pattern})
	if len(m.invalidated) > maxInvalidationLog {
		m.invalidated = m.invalidated[len(m.invalidated)-maxInvalidationLog:]
	}
}

// InvalidateByPattern removes every entry whose key contains pattern from memory
// and the mirror. Returns the number of in-memory entries removed.
func (m *Manager) InvalidateByPattern(ctx context.Context, pattern string) int {
	if pattern == "" {
		return 0
	}

	m.mu.Lock()
	removed := 0
	for k := range m.entries {
		if strings.Contains(k, pattern) {
			delete(m.entries, k)
			removed++
		}
	}
	m.recordInvalidation(pattern)
	CacheEntries.Set(float64(len(m.entries)))
	m.mu.Unlock()

	InvalidatedEntries.WithLabelValues("memory").Add(float64(removed))

	if m.mirror != nil {
		n, err := m.mirror.DeleteMatching(ctx, pattern)
		if err != nil {
			MirrorErrors.WithLabelValues("delete").Inc()
			m.logger.Warn().Err(err).Str("pattern", pattern).Msg("Mirror invalidation failed")
		}
		InvalidatedEntries.WithLabelValues("mirror").Add(float64(n))
	}

	m.logger.Debug().
		Str("pattern", pattern).
		Int("removed", removed).
		Msg("Invalidated cached queries")

	return removed
}

// Cleanup purges expired entries. Returns the number of in-memory entries removed.
func (m *Manager) Cleanup(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for k, entry := range m.entries {
		if entry.IsExpired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	CacheEntries.Set(float64(len(m.entries)))
	m.mu.Unlock()

	CleanupEvictions.WithLabelValues("memory").Add(float64(removed))

	if m.mirror != nil {
		n, err := m.mirror.Prune(ctx, now)
		if err != nil {
			MirrorErrors.WithLabelValues("prune").Inc()
			m.logger.Warn().Err(err).Msg("Mirror cleanup failed")
		}
		CleanupEvictions.WithLabelValues("mirror").Add(float64(n))
	}

	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("Purged expired entries")
	}
	return removed
}

// Clear drops every entry from memory and the mirror.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]*CacheEntry)
	m.recordInvalidation("")
	CacheEntries.Set(0)
	m.mu.Unlock()

	if m.mirror != nil {
		if err := m.mirror.Clear(ctx); err != nil {
			MirrorErrors.WithLabelValues("clear").Inc()
			return fmt.Errorf("clear mirror: %w", err)
		}
	}
	return nil
}

// Len returns the number of entries held in memory, expired ones included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
