package infergate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ineyio/infergate/clock"
)

// JobStatus is the lifecycle state of an async job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRecord tracks one async generation.
type JobRecord struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JobStore persists job records.
type JobStore interface {
	// Create stores a new pending record.
	Create(ctx context.Context, rec JobRecord) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (JobRecord, error)

	// Finish moves a pending record to a terminal state. It must return
	// ErrNotFound for unknown ids and ErrJobFinalized if the record is
	// already terminal; the check and the write are atomic.
	Finish(ctx context.Context, rec JobRecord) error
}

// JobManager drives jobs through pending -> completed | failed.
type JobManager struct {
	store JobStore
	clock clock.Clock
}

// NewJobManager creates a JobManager over store.
func NewJobManager(store JobStore, clk clock.Clock) *JobManager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &JobManager{store: store, clock: clk}
}

// Create registers a new pending job for userID.
func (m *JobManager) Create(ctx context.Context, userID string) (JobRecord, error) {
	now := m.clock.Now()
	rec := JobRecord{
		ID:        uuid.New().String(),
		Status:    JobPending,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return JobRecord{}, storageErr("create job", err)
	}
	return rec, nil
}

// Complete marks a pending job completed with result.
func (m *JobManager) Complete(ctx context.Context, id, result string) (JobRecord, error) {
	return m.finish(ctx, JobRecord{ID: id, Status: JobCompleted, Result: result})
}

// Fail marks a pending job failed. An empty message is replaced so that a
// failed job always carries an error.
func (m *JobManager) Fail(ctx context.Context, id, msg string) (JobRecord, error) {
	if msg == "" {
		msg = "generation failed"
	}
	return m.finish(ctx, JobRecord{ID: id, Status: JobFailed, Error: msg})
}

// Get returns the job or ErrNotFound.
func (m *JobManager) Get(ctx context.Context, id string) (JobRecord, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return JobRecord{}, jobErr("get job", err)
	}
	return rec, nil
}

func (m *JobManager) finish(ctx context.Context, rec JobRecord) (JobRecord, error) {
	rec.UpdatedAt = m.clock.Now()
	if err := m.store.Finish(ctx, rec); err != nil {
		return JobRecord{}, jobErr("finish job", err)
	}
	return m.Get(ctx, rec.ID)
}

// jobErr passes lifecycle errors through and wraps everything else as a
// storage failure.
func jobErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrJobFinalized) {
		return fmt.Errorf("infergate: %s: %w", op, err)
	}
	return storageErr(op, err)
}
