package infergate

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// Generator is the upstream text generation service.
type Generator interface {
	// Generate returns the completion of prompt on model. Implementations
	// should return errors wrapping ErrUpstreamUnavailable for transport,
	// timeout and non-2xx failures.
	Generate(ctx context.Context, prompt, model string) (string, error)
}

// generation is the outcome of one generation attempt at a resolved tier.
type generation struct {
	text     string
	tier     Tier
	costUSD  float64
	fallback bool
	err      error // absorbed upstream error
	duration time.Duration
}

// generate resolves the effective tier, calls the upstream with a bounded
// deadline and substitutes the deterministic fallback on any failure. The
// estimated cost is registered with the cost governor either way.
func (g *Gateway) generate(ctx context.Context, prompt string, requested Tier) generation {
	tier := g.governor.ResolveTier(requested)
	tc, ok := g.cfg.tier(tier)
	if !ok {
		tc, _ = g.cfg.tier(g.cfg.Budget.FallbackTier)
		tier = tc.Name
	}

	out := generation{
		tier:    tier,
		costUSD: EstimateCost(prompt, tc.BaseCostUSD),
	}

	start := g.clock.Now()
	switch {
	case g.generator == nil:
		out.err = fmt.Errorf("%w: no generator configured", ErrUpstreamUnavailable)
	case g.health.GetHealth(tc.Model) == HealthUnhealthy:
		out.err = fmt.Errorf("%w: model %s is unhealthy", ErrUpstreamUnavailable, tc.Model)
	default:
		text, err := g.callUpstream(ctx, prompt, tc.Model)
		if err != nil {
			g.health.RecordFailure(tc.Model)
			out.err = err
		} else {
			g.health.RecordSuccess(tc.Model)
			out.text = text
		}
	}
	out.duration = g.clock.Now().Sub(start)

	if out.err != nil {
		out.fallback = true
		out.text = FallbackText(prompt)
	}

	if g.governor.RegisterSpend(out.costUSD) {
		st := g.governor.State()
		g.meter.OnBudgetTripped(BudgetEvent{
			SpentUSD:     st.SpentToday,
			BudgetUSD:    st.BudgetUSD,
			FallbackTier: st.DowngradedTier,
		})
	}

	return out
}

// callUpstream bounds a single generator call by the configured timeout.
func (g *Gateway) callUpstream(ctx context.Context, prompt, model string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Generation.Timeout)
	defer cancel()
	return g.generator.Generate(ctx, prompt, model)
}

// FallbackText is the deterministic placeholder served when the upstream
// cannot answer.
func FallbackText(prompt string) string {
	runes := []rune(prompt)
	head := runes
	if len(head) > 40 {
		head = head[:40]
	}

	reversed := make([]rune, len(runes))
	for i, r := range runes {
		reversed[len(runes)-1-i] = r
	}
	hash := base64.StdEncoding.EncodeToString([]byte(string(reversed)))
	if len(hash) > 24 {
		hash = hash[:24]
	}

	return fmt.Sprintf("Deterministic response for: %s... | Hash: %s", string(head), hash)
}
