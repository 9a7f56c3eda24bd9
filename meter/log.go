package meter

import (
	"go.uber.org/zap"

	"github.com/ineyio/infergate"
)

// LogMeter logs governance events using zap.
type LogMeter struct {
	Logger *zap.Logger
}

var _ infergate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, zap.L() is used.
func NewLogMeter(logger *zap.Logger) *LogMeter {
	if logger == nil {
		logger = zap.L()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmission(e infergate.AdmissionEvent) {
	fields := []zap.Field{
		zap.String("user", e.UserID),
		zap.String("role", string(e.Role)),
		zap.Int64("used", e.Used),
		zap.Int64("limit", e.Limit),
	}
	if e.Allowed {
		m.Logger.Debug("admission", fields...)
		return
	}
	m.Logger.Warn("admission_denied", fields...)
}

func (m *LogMeter) OnCache(e infergate.CacheEvent) {
	m.Logger.Debug("cache",
		zap.String("key", e.Key),
		zap.Bool("hit", e.Hit),
	)
}

func (m *LogMeter) OnRisk(e infergate.RiskEvent) {
	if !e.Escalated {
		if e.Score > 0 {
			m.Logger.Info("risk",
				zap.String("user", e.UserID),
				zap.Int("score", e.Score),
				zap.Strings("reasons", e.Reasons),
			)
		}
		return
	}
	m.Logger.Warn("risk_escalated",
		zap.String("user", e.UserID),
		zap.Int("score", e.Score),
		zap.Strings("reasons", e.Reasons),
	)
}

func (m *LogMeter) OnGeneration(e infergate.GenerationEvent) {
	fields := []zap.Field{
		zap.String("user", e.UserID),
		zap.String("requested_tier", string(e.RequestedTier)),
		zap.String("tier", string(e.Tier)),
		zap.Float64("cost_usd", e.CostUSD),
		zap.Int64("duration_ms", e.Duration.Milliseconds()),
		zap.Bool("async", e.Async),
	}
	if e.Fallback {
		m.Logger.Warn("generation_fallback", append(fields, zap.Error(e.Error))...)
		return
	}
	m.Logger.Info("generation", fields...)
}

func (m *LogMeter) OnBudgetTripped(e infergate.BudgetEvent) {
	m.Logger.Warn("budget_tripped",
		zap.Float64("spent_usd", e.SpentUSD),
		zap.Float64("budget_usd", e.BudgetUSD),
		zap.String("fallback_tier", string(e.FallbackTier)),
	)
}

func (m *LogMeter) OnJob(e infergate.JobEvent) {
	if e.Status == infergate.JobFailed {
		m.Logger.Error("job_failed",
			zap.String("job", e.JobID),
			zap.String("user", e.UserID),
			zap.String("error", e.Error),
		)
		return
	}
	m.Logger.Info("job",
		zap.String("job", e.JobID),
		zap.String("user", e.UserID),
		zap.String("status", string(e.Status)),
	)
}
