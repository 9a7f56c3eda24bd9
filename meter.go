package infergate

import "time"

// Meter observes governance events for monitoring/logging.
type Meter interface {
	// OnAdmission is called after every quota decision.
	OnAdmission(event AdmissionEvent)

	// OnCache is called after every cache lookup.
	OnCache(event CacheEvent)

	// OnRisk is called after every fraud assessment.
	OnRisk(event RiskEvent)

	// OnGeneration is called when a generation finishes, sync or async.
	OnGeneration(event GenerationEvent)

	// OnBudgetTripped is called once when the cost governor starts downgrading.
	OnBudgetTripped(event BudgetEvent)

	// OnJob is called when an async job reaches a terminal state.
	OnJob(event JobEvent)
}

// AdmissionEvent describes a quota decision.
type AdmissionEvent struct {
	UserID  string
	Role    Role
	Allowed bool
	Used    int64
	Limit   int64
}

// CacheEvent describes a cache lookup.
type CacheEvent struct {
	Key string
	Hit bool
}

// RiskEvent describes a fraud assessment.
type RiskEvent struct {
	UserID    string
	Score     int
	Reasons   []string
	Escalated bool
}

// GenerationEvent describes the outcome of one generation.
type GenerationEvent struct {
	UserID        string
	RequestedTier Tier
	Tier          Tier
	CostUSD       float64
	Duration      time.Duration
	Async         bool
	Fallback      bool  // upstream failed and the deterministic placeholder was served
	Error         error // upstream error absorbed by the fallback, if any
}

// BudgetEvent describes the cost governor tripping.
type BudgetEvent struct {
	SpentUSD     float64
	BudgetUSD    float64
	FallbackTier Tier
}

// JobEvent describes an async job reaching a terminal state.
type JobEvent struct {
	JobID  string
	UserID string
	Status JobStatus
	Error  string
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnAdmission(AdmissionEvent)   {}
func (noopMeter) OnCache(CacheEvent)           {}
func (noopMeter) OnRisk(RiskEvent)             {}
func (noopMeter) OnGeneration(GenerationEvent) {}
func (noopMeter) OnBudgetTripped(BudgetEvent)  {}
func (noopMeter) OnJob(JobEvent)               {}
