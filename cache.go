package infergate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"
)

// CacheStore is a key-value store with per-entry TTL.
// Expired entries must read as a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// Fingerprint derives the cache key for a prompt at a requested tier.
// Different tiers never share a key.
func Fingerprint(prompt string, tier Tier) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(tier))
	return hex.EncodeToString(h.Sum(nil))
}

// ResponseCache wraps a CacheStore with hit/miss accounting.
type ResponseCache struct {
	store CacheStore
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResponseCache creates a ResponseCache with a default TTL.
func NewResponseCache(store CacheStore, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResponseCache{store: store, ttl: ttl}
}

// Lookup returns the value stored under key.
func (c *ResponseCache) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, storageErr("cache get", err)
	}
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return value, true, nil
}

// Store saves value under key. A non-positive ttl uses the cache default.
func (c *ResponseCache) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		return storageErr("cache set", err)
	}
	return nil
}

// Stats returns the hit/miss counters.
func (c *ResponseCache) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
