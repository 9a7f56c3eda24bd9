package infergate

import (
	"context"
	"sync"
	"time"

	"github.com/ineyio/infergate/clock"
)

// UsageStore keeps per-user request counters bucketed by UTC day.
type UsageStore interface {
	// Usage returns the counter for userID on day, or 0 if it does not exist.
	Usage(ctx context.Context, userID, day string) (int64, error)

	// Increment atomically adds one to the counter and returns the new total.
	Increment(ctx context.Context, userID, day string) (int64, error)

	// IncrementBelow atomically adds one only while the counter is below
	// ceiling. It returns the counter after the call and whether it moved.
	IncrementBelow(ctx context.Context, userID, day string, ceiling int64) (int64, bool, error)
}

// Admission is the outcome of a quota check.
type Admission struct {
	Allowed bool  `json:"allowed"`
	Used    int64 `json:"used"`
	Limit   int64 `json:"limit"`
}

// DayKey returns the usage bucket for t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// QuotaTracker admits or soft-blocks callers against their daily ceiling.
//
// Once a caller reaches its limit, the first request over the limit is let
// through and arms a soft-block window; requests inside the window are
// rejected without touching the counter. After the window elapses the next
// request re-arms it.
type QuotaTracker struct {
	cfg   QuotaConfig
	store UsageStore
	clock clock.Clock

	mu        sync.Mutex
	blockedAt map[string]time.Time // process-local, never persisted
}

// NewQuotaTracker creates a QuotaTracker backed by store.
func NewQuotaTracker(cfg QuotaConfig, store UsageStore, clk clock.Clock) *QuotaTracker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &QuotaTracker{
		cfg:       cfg,
		store:     store,
		clock:     clk,
		blockedAt: make(map[string]time.Time),
	}
}

// Limit returns the daily ceiling for a caller class.
func (q *QuotaTracker) Limit(role Role) int64 {
	switch role {
	case RoleAdmin:
		return q.cfg.AdminDaily
	case RolePartner:
		return q.cfg.PartnerDaily
	default:
		return q.cfg.UserDaily
	}
}

// Admit increments the caller's usage for today by exactly one unless it
// is soft-blocked. Below the limit the check and the increment are one
// atomic store operation, so concurrent callers never overshoot it; at the
// limit only the caller that arms the soft-block window is let through.
func (q *QuotaTracker) Admit(ctx context.Context, id Identity) (Admission, error) {
	limit := q.Limit(id.Role)
	now := q.clock.Now()
	day := DayKey(now)

	used, ok, err := q.store.IncrementBelow(ctx, id.ID, day, limit)
	if err != nil {
		return Admission{}, storageErr("increment usage", err)
	}
	if ok {
		return Admission{Allowed: true, Used: used, Limit: limit}, nil
	}

	if q.softBlocked(id.ID, now) {
		return Admission{Allowed: false, Used: used, Limit: limit}, nil
	}

	total, err := q.store.Increment(ctx, id.ID, day)
	if err != nil {
		return Admission{}, storageErr("increment usage", err)
	}

	return Admission{Allowed: true, Used: total, Limit: limit}, nil
}

// Usage returns today's counter for userID without incrementing it.
func (q *QuotaTracker) Usage(ctx context.Context, userID string) (int64, error) {
	used, err := q.store.Usage(ctx, userID, DayKey(q.clock.Now()))
	if err != nil {
		return 0, storageErr("read usage", err)
	}
	return used, nil
}

// softBlocked reports whether userID is inside an active soft-block window.
// When it is not, a new window starting at now is armed.
func (q *QuotaTracker) softBlocked(userID string, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if last, ok := q.blockedAt[userID]; ok && now.Sub(last) < q.cfg.SoftBlockWindow {
		return true
	}
	q.blockedAt[userID] = now
	return false
}
