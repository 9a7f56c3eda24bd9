// Package cache provides CacheStore implementations for infergate.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ineyio/infergate"
	"github.com/ineyio/infergate/clock"
)

// MemoryStore is an in-process CacheStore. Expired entries read as a miss
// and are purged on access; there is no background sweep.
type MemoryStore struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

var _ infergate.CacheStore = (*MemoryStore)(nil)

// Option configures MemoryStore.
type Option func(*MemoryStore)

// WithClock sets the time source used for expiry.
func WithClock(c clock.Clock) Option {
	return func(s *MemoryStore) { s.clock = c }
}

// NewMemoryStore creates a new in-memory cache store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		clock:   clock.Real{},
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for key if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.entries[key] = entry{value: v, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Len returns the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
