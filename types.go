package infergate

import "time"

// Tier is a generation service quality level.
type Tier string

const (
	TierLite     Tier = "lite"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Role classifies a caller for quota purposes.
type Role string

const (
	RoleUser    Role = "user"
	RolePartner Role = "partner"
	RoleAdmin   Role = "admin"
)

// Identity is a resolved caller.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Privileged reports whether the identity bypasses standard limits.
func (i Identity) Privileged() bool { return i.Role == RoleAdmin }

// GenerateRequest is one inbound generation request.
type GenerateRequest struct {
	Identity  Identity
	Prompt    string
	Tier      Tier // requested tier; empty means the default tier
	Async     bool // explicit async flag from request metadata
	ClientIP  string
	UserAgent string
	Metadata  map[string]any
}

// GenerateResponse is returned for both cached and fresh generations.
type GenerateResponse struct {
	JobID          string   `json:"jobId"`
	Status         string   `json:"status,omitempty"`
	Result         string   `json:"result,omitempty"`
	Cached         bool     `json:"cached"`
	CostEstimate   float64  `json:"costEstimate"`
	Tier           Tier     `json:"modelTier,omitempty"`
	AffiliateLinks []string `json:"affiliateLinks,omitempty"`

	// Quota is the admission that let this request through.
	Quota Admission `json:"-"`
}

// Pending reports whether the response only carries an async job handle.
func (r GenerateResponse) Pending() bool { return r.Status == string(JobPending) }

// AdminMetrics is the privileged operational snapshot.
type AdminMetrics struct {
	RevenueUSD      float64      `json:"revenueUsd"`
	QuotaViolations int          `json:"quotaViolations"`
	CircuitBreaker  BreakerState `json:"circuitBreaker"`
	CacheHitRate    float64      `json:"cacheHitRate"`
}

// BreakerState is a snapshot of the cost governor.
type BreakerState struct {
	SpentToday     float64   `json:"spentToday"`
	Downgraded     bool      `json:"downgraded"`
	DowngradedTier Tier      `json:"downgradedTier"`
	LastReset      time.Time `json:"lastReset"`
	BudgetUSD      float64   `json:"budget"`
}
