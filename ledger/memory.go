// Package ledger provides LedgerStore implementations for infergate.
package ledger

import (
	"context"
	"maps"
	"sync"

	"github.com/ineyio/infergate"
)

// MemoryStore is an in-memory LedgerStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []infergate.LedgerEntry
}

var _ infergate.LedgerStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append adds entry to the end of the log.
func (s *MemoryStore) Append(_ context.Context, entry infergate.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Metadata = maps.Clone(entry.Metadata)
	s.entries = append(s.entries, entry)
	return nil
}

// Recent returns up to limit most recent entries, oldest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]infergate.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.entries) - limit
	if start < 0 {
		start = 0
	}
	out := make([]infergate.LedgerEntry, len(s.entries)-start)
	for i, e := range s.entries[start:] {
		e.Metadata = maps.Clone(e.Metadata)
		out[i] = e
	}
	return out, nil
}
