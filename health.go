package infergate

import (
	"sync"
	"time"

	"github.com/ineyio/infergate/clock"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
	healthUnhealthyPeriod  = 30 * time.Second
)

// HealthState represents upstream model health.
type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthHalfOpen
)

func (s HealthState) String() string {
	switch s {
	case HealthUnhealthy:
		return "unhealthy"
	case HealthHalfOpen:
		return "half_open"
	default:
		return "healthy"
	}
}

// HealthTracker tracks per-model upstream health. After repeated failures a
// model is skipped and served the deterministic fallback directly until the
// unhealthy period elapses; the next call then tries it again.
type HealthTracker struct {
	clock clock.Clock

	mu     sync.Mutex
	models map[string]*modelHealth
}

type modelHealth struct {
	state       HealthState
	failures    []time.Time // sliding window of failure timestamps
	unhealthyAt time.Time
}

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker(clk clock.Clock) *HealthTracker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &HealthTracker{
		clock:  clk,
		models: make(map[string]*modelHealth),
	}
}

// GetHealth returns the current health state for a model.
func (h *HealthTracker) GetHealth(model string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	mh, ok := h.models[model]
	if !ok {
		return HealthHealthy
	}

	// Unhealthy period elapsed, allow one trial call.
	if mh.state == HealthUnhealthy && h.clock.Now().Sub(mh.unhealthyAt) >= healthUnhealthyPeriod {
		mh.state = HealthHalfOpen
	}
	return mh.state
}

// RecordSuccess records a successful upstream call.
func (h *HealthTracker) RecordSuccess(model string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	mh := h.getOrCreate(model)
	mh.state = HealthHealthy
	mh.failures = mh.failures[:0]
}

// RecordFailure records a failed upstream call.
func (h *HealthTracker) RecordFailure(model string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	mh := h.getOrCreate(model)

	// A failed trial goes straight back to unhealthy.
	if mh.state == HealthHalfOpen {
		mh.state = HealthUnhealthy
		mh.unhealthyAt = now
		return
	}
	if mh.state == HealthUnhealthy {
		return
	}

	cutoff := now.Add(-healthFailureWindow)
	valid := mh.failures[:0]
	for _, t := range mh.failures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	mh.failures = append(valid, now)

	if len(mh.failures) >= healthFailureThreshold {
		mh.state = HealthUnhealthy
		mh.unhealthyAt = now
	}
}

func (h *HealthTracker) getOrCreate(model string) *modelHealth {
	mh, ok := h.models[model]
	if !ok {
		mh = &modelHealth{state: HealthHealthy}
		h.models[model] = mh
	}
	return mh
}
