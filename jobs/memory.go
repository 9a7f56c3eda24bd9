// Package jobs provides JobStore implementations for infergate.
package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/ineyio/infergate"
)

// MemoryStore is an in-memory JobStore.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]infergate.JobRecord
}

var _ infergate.JobStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]infergate.JobRecord)}
}

// Create stores a new record.
func (s *MemoryStore) Create(_ context.Context, rec infergate.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[rec.ID]; ok {
		return fmt.Errorf("infergate/jobs: duplicate job id %q", rec.ID)
	}
	s.jobs[rec.ID] = rec
	return nil
}

// Get returns the record or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (infergate.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.jobs[id]
	if !ok {
		return infergate.JobRecord{}, infergate.ErrNotFound
	}
	return rec, nil
}

// Finish applies the terminal transition carried by rec.
func (s *MemoryStore) Finish(_ context.Context, rec infergate.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[rec.ID]
	if !ok {
		return infergate.ErrNotFound
	}
	if cur.Status.Terminal() {
		return infergate.ErrJobFinalized
	}

	cur.Status = rec.Status
	cur.Result = rec.Result
	cur.Error = rec.Error
	cur.UpdatedAt = rec.UpdatedAt
	s.jobs[rec.ID] = cur
	return nil
}
