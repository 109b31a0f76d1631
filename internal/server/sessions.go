package server

import (
	"sync"
	"time"

	"github.com/Sternrassler/marketplace-client/pkg/browse"
	"github.com/Sternrassler/marketplace-client/pkg/filters"
	"github.com/Sternrassler/marketplace-client/pkg/listings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultSessionIdle is how long an untouched session is kept.
const DefaultSessionIdle = 30 * time.Minute

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "marketplace_server_sessions",
	Help: "Browsing sessions currently held by the server",
})

type sessionEntry struct {
	session  *browse.Session
	lastSeen time.Time
}

// Sessions holds the browsing sessions of the HTTP surface keyed by id.
// Every session gets its own filter store and listing coordinator over the
// shared resolver and gateway.
type Sessions struct {
	resolver    *filters.Resolver
	source      listings.Source
	invalidator listings.Invalidator
	listingOpts listings.Options
	idle        time.Duration
	now         func() time.Time
	logger      *zerolog.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewSessions creates an empty registry. idle <= 0 uses DefaultSessionIdle.
func NewSessions(resolver *filters.Resolver, source listings.Source, invalidator listings.Invalidator, opts listings.Options, idle time.Duration, logger *zerolog.Logger) *Sessions {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &Sessions{
		resolver:    resolver,
		source:      source,
		invalidator: invalidator,
		listingOpts: opts,
		idle:        idle,
		now:         time.Now,
		logger:      logger,
		entries:     make(map[string]*sessionEntry),
	}
}

// Create starts and registers a new session.
func (r *Sessions) Create() *browse.Session {
	store := filters.NewStore(r.resolver, r.logger)
	coordinator := listings.NewCoordinator(r.source, r.invalidator, r.listingOpts)
	s := browse.NewSession(store, coordinator, r.logger)

	r.mu.Lock()
	r.entries[s.ID()] = &sessionEntry{session: s, lastSeen: r.now()}
	activeSessions.Set(float64(len(r.entries)))
	r.mu.Unlock()
	return s
}

// Get returns the session with id and marks it as used.
func (r *Sessions) Get(id string) (*browse.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.session, true
}

// Delete removes a session and reports whether it existed.
func (r *Sessions) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	activeSessions.Set(float64(len(r.entries)))
	return true
}

// Expire drops sessions idle for longer than the idle window.
func (r *Sessions) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idle)
	n := 0
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			n++
		}
	}
	activeSessions.Set(float64(len(r.entries)))
	return n
}

// Len returns the number of held sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
