package meter

import "github.com/ineyio/infergate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ infergate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAdmission(infergate.AdmissionEvent)   {}
func (m *NoopMeter) OnCache(infergate.CacheEvent)           {}
func (m *NoopMeter) OnRisk(infergate.RiskEvent)             {}
func (m *NoopMeter) OnGeneration(infergate.GenerationEvent) {}
func (m *NoopMeter) OnBudgetTripped(infergate.BudgetEvent)  {}
func (m *NoopMeter) OnJob(infergate.JobEvent)               {}
