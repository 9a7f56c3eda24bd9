package infergate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ineyio/infergate/clock"
)

// metricsWindow is how many recent ledger entries AdminMetrics aggregates.
const metricsWindow = 500

// Stores are the pluggable backings a Gateway runs on.
type Stores struct {
	Usage  UsageStore
	Cache  CacheStore
	Ledger LedgerStore
	Jobs   JobStore
}

// Gateway is the admission pipeline in front of the generation upstream.
type Gateway struct {
	cfg Config

	quota    *QuotaTracker
	cache    *ResponseCache
	governor *CostGovernor
	fraud    *FraudScorer
	jobs     *JobManager
	ledger   *Ledger
	pool     *Pool
	health   *HealthTracker

	generator Generator
	meter     Meter
	clock     clock.Clock
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithGenerator sets the generation upstream. Without one every request is
// served the deterministic fallback.
func WithGenerator(gen Generator) Option {
	return func(g *Gateway) { g.generator = gen }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(g *Gateway) { g.meter = m }
}

// WithClock sets the time source for every time-windowed component.
func WithClock(c clock.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithHealthTracker sets the upstream health tracker.
func WithHealthTracker(h *HealthTracker) Option {
	return func(g *Gateway) { g.health = h }
}

// NewGateway creates a Gateway with the given config and stores.
// A NoopMeter and the real clock are used unless overridden via options.
func NewGateway(cfg Config, stores Stores, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case stores.Usage == nil:
		return nil, fmt.Errorf("infergate: usage store is required")
	case stores.Cache == nil:
		return nil, fmt.Errorf("infergate: cache store is required")
	case stores.Ledger == nil:
		return nil, fmt.Errorf("infergate: ledger store is required")
	case stores.Jobs == nil:
		return nil, fmt.Errorf("infergate: job store is required")
	}

	g := &Gateway{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}

	// Apply defaults after options.
	if g.clock == nil {
		g.clock = clock.Real{}
	}
	if g.meter == nil {
		g.meter = noopMeter{}
	}
	if g.health == nil {
		g.health = NewHealthTracker(g.clock)
	}

	g.quota = NewQuotaTracker(cfg.Quota, stores.Usage, g.clock)
	g.cache = NewResponseCache(stores.Cache, cfg.Cache.TTL)
	g.governor = NewCostGovernor(cfg.Budget, g.clock)
	g.fraud = NewFraudScorer(cfg.Fraud)
	g.jobs = NewJobManager(stores.Jobs, g.clock)
	g.ledger = NewLedger(stores.Ledger, g.clock)
	g.pool = NewPool(cfg.Async.Workers, cfg.Async.QueueSize)

	return g, nil
}

// Generate runs one request through the admission pipeline.
//
// Order: quota, cache, fraud, sync/async split, tier resolution and
// generation, cache store, ledger. Effects of completed steps are never
// rolled back when a later step fails.
func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return GenerateResponse{}, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	tier := req.Tier
	if tier == "" {
		tier = g.cfg.DefaultTier
	}
	if _, ok := g.cfg.tier(tier); !ok {
		return GenerateResponse{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidRequest, tier)
	}
	userID := req.Identity.ID

	// Quota.
	adm, err := g.quota.Admit(ctx, req.Identity)
	if err != nil {
		return GenerateResponse{}, err
	}
	g.meter.OnAdmission(AdmissionEvent{
		UserID:  userID,
		Role:    req.Identity.Role,
		Allowed: adm.Allowed,
		Used:    adm.Used,
		Limit:   adm.Limit,
	})
	if !adm.Allowed {
		if _, err := g.ledger.Append(ctx, LedgerEntry{
			UserID:    userID,
			EventType: EventQuotaExceeded,
			Metadata:  map[string]any{"used": adm.Used, "limit": adm.Limit},
		}); err != nil {
			return GenerateResponse{}, err
		}
		return GenerateResponse{}, &AdmissionError{
			UserID:      userID,
			Used:        adm.Used,
			Limit:       adm.Limit,
			UpgradeHint: g.cfg.Quota.UpgradeHint,
		}
	}

	// Cache.
	key := Fingerprint(req.Prompt, tier)
	if resp, ok, err := g.cachedResponse(ctx, key); err != nil {
		return GenerateResponse{}, err
	} else if ok {
		if _, err := g.ledger.Append(ctx, LedgerEntry{
			UserID:    userID,
			EventType: EventGeneration,
			AmountUSD: g.cfg.Cache.HitCostUSD,
			Metadata:  map[string]any{"cached": true},
		}); err != nil {
			return GenerateResponse{}, err
		}
		resp.Cached = true
		resp.Quota = adm
		return resp, nil
	}

	// Fraud.
	risk := g.fraud.Assess(FraudContext{
		UserID:         userID,
		IP:             req.ClientIP,
		UserAgent:      req.UserAgent,
		RecentRequests: adm.Used,
	})
	g.meter.OnRisk(RiskEvent{
		UserID:    userID,
		Score:     risk.RiskScore,
		Reasons:   risk.Reasons,
		Escalated: risk.EscalateToKYC,
	})
	if risk.EscalateToKYC {
		return GenerateResponse{}, &RiskError{
			UserID:          userID,
			Score:           risk.RiskScore,
			Reasons:         risk.Reasons,
			VerificationURL: g.cfg.VerificationURL,
		}
	}

	// Async.
	if req.Async || len(req.Prompt) > g.cfg.Async.PromptThreshold {
		return g.enqueue(ctx, userID, req.Prompt, tier, adm)
	}

	// Sync generation.
	gen := g.generate(ctx, req.Prompt, tier)
	g.meter.OnGeneration(GenerationEvent{
		UserID:        userID,
		RequestedTier: tier,
		Tier:          gen.tier,
		CostUSD:       gen.costUSD,
		Duration:      gen.duration,
		Fallback:      gen.fallback,
		Error:         gen.err,
	})

	text, links := g.cfg.Affiliates.Enrich(gen.text)
	resp := GenerateResponse{
		JobID:          uuid.New().String(),
		Result:         text,
		CostEstimate:   gen.costUSD,
		Tier:           gen.tier,
		AffiliateLinks: links,
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("infergate: encode cache entry: %w", err)
	}
	if err := g.cache.Store(ctx, key, payload, 0); err != nil {
		return GenerateResponse{}, err
	}

	if _, err := g.ledger.Append(ctx, LedgerEntry{
		UserID:    userID,
		EventType: EventGeneration,
		AmountUSD: gen.costUSD,
		Metadata:  map[string]any{"tier": string(gen.tier), "fallback": gen.fallback},
	}); err != nil {
		return GenerateResponse{}, err
	}

	resp.Quota = adm
	return resp, nil
}

// cachedResponse looks key up and decodes the stored response. Undecodable
// payloads are treated as a miss.
func (g *Gateway) cachedResponse(ctx context.Context, key string) (GenerateResponse, bool, error) {
	raw, ok, err := g.cache.Lookup(ctx, key)
	if err != nil {
		return GenerateResponse{}, false, err
	}
	g.meter.OnCache(CacheEvent{Key: key, Hit: ok})
	if !ok {
		return GenerateResponse{}, false, nil
	}

	var resp GenerateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return GenerateResponse{}, false, nil
	}
	return resp, true, nil
}

// enqueue creates a pending job and hands the generation to the worker pool.
func (g *Gateway) enqueue(ctx context.Context, userID, prompt string, tier Tier, adm Admission) (GenerateResponse, error) {
	job, err := g.jobs.Create(ctx, userID)
	if err != nil {
		return GenerateResponse{}, err
	}

	if err := g.pool.Submit(ctx, func() { g.runJob(job.ID, userID, prompt, tier) }); err != nil {
		// Background context: the request context may be what failed.
		_, _ = g.jobs.Fail(context.Background(), job.ID, "enqueue: "+err.Error())
		return GenerateResponse{}, fmt.Errorf("infergate: enqueue job %s: %w", job.ID, err)
	}

	return GenerateResponse{
		JobID:  job.ID,
		Status: string(JobPending),
		Quota:  adm,
	}, nil
}

// runJob executes an async generation. It runs detached from the request
// that created it, so it uses a background context and never propagates
// errors or panics: every outcome ends in a terminal job state.
func (g *Gateway) runJob(jobID, userID, prompt string, tier Tier) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			g.finishJob(ctx, jobID, userID, "", fmt.Sprintf("panic: %v", r))
		}
	}()

	gen := g.generate(ctx, prompt, tier)
	g.meter.OnGeneration(GenerationEvent{
		UserID:        userID,
		RequestedTier: tier,
		Tier:          gen.tier,
		CostUSD:       gen.costUSD,
		Duration:      gen.duration,
		Async:         true,
		Fallback:      gen.fallback,
		Error:         gen.err,
	})

	text, _ := g.cfg.Affiliates.Enrich(gen.text)

	if _, err := g.ledger.Append(ctx, LedgerEntry{
		UserID:    userID,
		EventType: EventGeneration,
		AmountUSD: gen.costUSD,
		Metadata:  map[string]any{"tier": string(gen.tier), "fallback": gen.fallback, "async": true, "jobId": jobID},
	}); err != nil {
		g.finishJob(ctx, jobID, userID, "", err.Error())
		return
	}

	g.finishJob(ctx, jobID, userID, text, "")
}

func (g *Gateway) finishJob(ctx context.Context, jobID, userID, result, failure string) {
	var (
		rec JobRecord
		err error
	)
	if failure == "" {
		rec, err = g.jobs.Complete(ctx, jobID, result)
	} else {
		rec, err = g.jobs.Fail(ctx, jobID, failure)
	}

	ev := JobEvent{JobID: jobID, UserID: userID, Status: rec.Status, Error: rec.Error}
	if err != nil {
		ev.Status = JobFailed
		ev.Error = err.Error()
	}
	g.meter.OnJob(ev)
}

// Job returns the current state of an async job.
func (g *Gateway) Job(ctx context.Context, id string) (JobRecord, error) {
	return g.jobs.Get(ctx, id)
}

// AdminMetrics aggregates the recent ledger window with live governor and
// cache state.
func (g *Gateway) AdminMetrics(ctx context.Context) (AdminMetrics, error) {
	entries, err := g.ledger.Read(ctx, metricsWindow)
	if err != nil {
		return AdminMetrics{}, err
	}
	sum := Summarize(entries)

	return AdminMetrics{
		RevenueUSD:      sum.RevenueUSD,
		QuotaViolations: sum.QuotaViolations,
		CircuitBreaker:  g.governor.State(),
		CacheHitRate:    g.cache.Stats().HitRate,
	}, nil
}

// Ledger returns the gateway's ledger for collaborators that record or
// audit events outside the generation path.
func (g *Gateway) Ledger() *Ledger { return g.ledger }

// Governor returns the gateway's cost governor.
func (g *Gateway) Governor() *CostGovernor { return g.governor }

// CacheStats returns the response cache counters.
func (g *Gateway) CacheStats() CacheStats { return g.cache.Stats() }

// Close stops accepting async work and waits for queued jobs to finish or
// ctx to be done.
func (g *Gateway) Close(ctx context.Context) error {
	return g.pool.Close(ctx)
}
