package cache

import (
	"time"
)

// CacheEntry is one memoized query result.
type CacheEntry struct {
	// Key is the canonical request key (see CacheKey.String)
	Key string `json:"key"`

	// Data is the raw response payload. Callers must not modify it.
	Data []byte `json:"data"`

	// Timestamp is when the result was stored
	Timestamp time.Time `json:"timestamp"`

	// TTL is how long the entry stays fresh after Timestamp
	TTL time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the entry becomes stale.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.Timestamp.Add(e.TTL)
}

// IsExpired returns true if the entry is no longer fresh at now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.Sub(e.Timestamp) >= e.TTL
}

// Remaining returns the time left until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) Remaining(now time.Time) time.Duration {
	ttl := e.ExpiresAt().Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
