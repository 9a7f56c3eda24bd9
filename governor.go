package infergate

import (
	"sync"
	"time"

	"github.com/ineyio/infergate/clock"
)

const governorWindow = 24 * time.Hour

// CostGovernor is a budget circuit breaker. Once spend since the last reset
// reaches the daily budget, every non-fallback tier is coerced to the
// fallback tier until the window rolls over. It never rejects work.
type CostGovernor struct {
	mu           sync.Mutex
	clock        clock.Clock
	budget       float64
	fallbackTier Tier

	spent      float64
	downgraded bool
	lastReset  time.Time
}

// NewCostGovernor creates a CostGovernor with a daily budget in USD.
func NewCostGovernor(cfg BudgetConfig, clk clock.Clock) *CostGovernor {
	if clk == nil {
		clk = clock.Real{}
	}
	return &CostGovernor{
		clock:        clk,
		budget:       cfg.DailyUSD,
		fallbackTier: cfg.FallbackTier,
		lastReset:    clk.Now(),
	}
}

// RegisterSpend adds billable cost. It returns true if this call tripped
// the breaker.
func (g *CostGovernor) RegisterSpend(amount float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset()

	g.spent += amount
	if !g.downgraded && g.spent >= g.budget {
		g.downgraded = true
		return true
	}
	return false
}

// ResolveTier returns the tier work should actually run at.
func (g *CostGovernor) ResolveTier(requested Tier) Tier {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset()

	if g.downgraded && requested != g.fallbackTier {
		return g.fallbackTier
	}
	return requested
}

// State returns a snapshot of the breaker.
func (g *CostGovernor) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.maybeReset()

	return BreakerState{
		SpentToday:     g.spent,
		Downgraded:     g.downgraded,
		DowngradedTier: g.fallbackTier,
		LastReset:      g.lastReset,
		BudgetUSD:      g.budget,
	}
}

// maybeReset starts a new window if the current one has elapsed. Must be
// called with lock held.
func (g *CostGovernor) maybeReset() {
	now := g.clock.Now()
	if now.Sub(g.lastReset) >= governorWindow {
		g.spent = 0
		g.downgraded = false
		g.lastReset = now
	}
}
