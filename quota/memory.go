// Package quota provides UsageStore implementations for infergate.
package quota

import (
	"context"
	"sync"

	"github.com/ineyio/infergate"
)

// MemoryUsageStore is an in-memory UsageStore for single-instance deployments.
type MemoryUsageStore struct {
	mu     sync.Mutex
	counts map[usageKey]int64
}

type usageKey struct {
	userID string
	day    string
}

var _ infergate.UsageStore = (*MemoryUsageStore)(nil)

// NewMemoryUsageStore creates a new in-memory usage store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{counts: make(map[usageKey]int64)}
}

// Usage returns the counter for userID on day.
func (s *MemoryUsageStore) Usage(_ context.Context, userID, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[usageKey{userID, day}], nil
}

// Increment adds one to the counter and returns the new total.
func (s *MemoryUsageStore) Increment(_ context.Context, userID, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := usageKey{userID, day}
	s.counts[k]++
	return s.counts[k], nil
}

// IncrementBelow adds one while the counter is below ceiling.
func (s *MemoryUsageStore) IncrementBelow(_ context.Context, userID, day string, ceiling int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := usageKey{userID, day}
	if s.counts[k] >= ceiling {
		return s.counts[k], false, nil
	}
	s.counts[k]++
	return s.counts[k], true, nil
}

// Prune drops counters for every day other than keep. Only the current day
// is ever read, so older buckets are dead weight.
func (s *MemoryUsageStore) Prune(keep string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.counts {
		if k.day != keep {
			delete(s.counts, k)
			n++
		}
	}
	return n
}
