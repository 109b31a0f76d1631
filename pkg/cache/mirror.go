package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultNamespace is the Redis key holding the mirrored entries.
const DefaultNamespace = "marketplace:request-cache"

// DefaultSessionTTL bounds the lifetime of the whole mirror.
const DefaultSessionTTL = 12 * time.Hour

// Mirror is the same-session persistence layer behind the in-memory map.
// Implementations must be safe for concurrent use.
type Mirror interface {
	// Load returns ErrCacheMiss when key is absent.
	Load(ctx context.Context, key string) (*CacheEntry, error)
	Save(ctx context.Context, entry *CacheEntry) error

	// DeleteMatching removes every key containing pattern.
	DeleteMatching(ctx context.Context, pattern string) (int, error)

	// Prune removes entries expired at now, and any it cannot decode.
	Prune(ctx context.Context, now time.Time) (int, error)

	// Clear removes the mirror entirely.
	Clear(ctx context.Context) error
}

// persistedEntry is the stored layout: {data, timestamp, ttl}, times in milliseconds.
type persistedEntry struct {
	Data      []byte `msgpack:"data"`
	Timestamp int64  `msgpack:"timestamp"`
	TTL       int64  `msgpack:"ttl"`
}

func encodeEntry(entry *CacheEntry) ([]byte, error) {
	return msgpack.Marshal(persistedEntry{
		Data:      entry.Data,
		Timestamp: entry.Timestamp.UnixMilli(),
		TTL:       entry.TTL.Milliseconds(),
	})
}

func decodeEntry(key string, raw []byte) (*CacheEntry, error) {
	var p persistedEntry
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &CacheEntry{
		Key:       key,
		Data:      p.Data,
		Timestamp: time.UnixMilli(p.Timestamp),
		TTL:       time.Duration(p.TTL) * time.Millisecond,
	}, nil
}

// RedisMirror keeps every entry as a field of one namespaced Redis hash.
type RedisMirror struct {
	redis      *redis.Client
	namespace  string
	sessionTTL time.Duration
}

// NewRedisMirror creates a mirror backed by redisClient. Empty namespace and
// zero sessionTTL fall back to the defaults.
func NewRedisMirror(redisClient *redis.Client, namespace string, sessionTTL time.Duration) *RedisMirror {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &RedisMirror{
		redis:      redisClient,
		namespace:  namespace,
		sessionTTL: sessionTTL,
	}
}

// Namespace returns the Redis key of the hash.
func (r *RedisMirror) Namespace() string {
	return r.namespace
}

// Load retrieves one entry.
func (r *RedisMirror) Load(ctx context.Context, key string) (*CacheEntry, error) {
	raw, err := r.redis.HGet(ctx, r.namespace, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	entry, err := decodeEntry(key, raw)
	if err != nil {
		// self-heal corrupt field
		_ = r.redis.HDel(ctx, r.namespace, key).Err()
		return nil, err
	}
	return entry, nil
}

// Save stores one entry and refreshes the session TTL of the hash.
func (r *RedisMirror) Save(ctx context.Context, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	raw, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.HSet(ctx, r.namespace, entry.Key, raw)
	pipe.Expire(ctx, r.namespace, r.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// DeleteMatching prunes every field whose key contains pattern.
func (r *RedisMirror) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	keys, err := r.redis.HKeys(ctx, r.namespace).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hkeys: %w", err)
	}

	var matched []string
	for _, k := range keys {
		if strings.Contains(k, pattern) {
			matched = append(matched, k)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	n, err := r.redis.HDel(ctx, r.namespace, matched...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel: %w", err)
	}
	return int(n), nil
}

// Prune removes expired and undecodable entries.
func (r *RedisMirror) Prune(ctx context.Context, now time.Time) (int, error) {
	all, err := r.redis.HGetAll(ctx, r.namespace).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hgetall: %w", err)
	}

	var stale []string
	for k, raw := range all {
		entry, err := decodeEntry(k, []byte(raw))
		if err != nil || entry.IsExpired(now) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := r.redis.HDel(ctx, r.namespace, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel: %w", err)
	}
	return int(n), nil
}

// Clear deletes the whole hash.
func (r *RedisMirror) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.namespace).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
