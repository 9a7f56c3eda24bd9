package infergate

import "strings"

// Signal weights and the escalation threshold.
const (
	weightUsageSpike   = 30
	weightSuspiciousIP = 10
	weightScriptedUA   = 10

	escalationThreshold = 40
)

// FraudContext is the request context the fraud scorer inspects.
type FraudContext struct {
	UserID         string
	IP             string
	UserAgent      string
	RecentRequests int64
}

// FraudAssessment is the derived risk of one request.
type FraudAssessment struct {
	RiskScore     int      `json:"riskScore"`
	Reasons       []string `json:"reasons"`
	EscalateToKYC bool     `json:"escalateToKyc"`
}

// FraudScorer scores requests from independent, additive signals.
// It holds configuration only and is safe for concurrent use.
type FraudScorer struct {
	cfg FraudConfig
}

// NewFraudScorer creates a FraudScorer.
func NewFraudScorer(cfg FraudConfig) *FraudScorer {
	return &FraudScorer{cfg: cfg}
}

// Assess scores ctx. It performs no I/O.
func (s *FraudScorer) Assess(ctx FraudContext) FraudAssessment {
	var a FraudAssessment

	if ctx.RecentRequests > int64(s.cfg.SpikeThreshold) {
		a.RiskScore += weightUsageSpike
		a.Reasons = append(a.Reasons, "usage spike")
	}

	if ctx.IP != "" {
		for _, prefix := range s.cfg.SuspiciousIPs {
			if strings.HasPrefix(ctx.IP, prefix) {
				a.RiskScore += weightSuspiciousIP
				a.Reasons = append(a.Reasons, "suspicious private ip")
				break
			}
		}
	}

	if ctx.UserAgent != "" {
		ua := strings.ToLower(ctx.UserAgent)
		for _, marker := range s.cfg.ScriptedAgents {
			if marker != "" && strings.Contains(ua, strings.ToLower(marker)) {
				a.RiskScore += weightScriptedUA
				a.Reasons = append(a.Reasons, marker+" user agent")
				break
			}
		}
	}

	a.EscalateToKYC = a.RiskScore >= escalationThreshold
	return a
}
