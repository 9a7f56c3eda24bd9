package meter

import "github.com/ineyio/infergate"

// Multi fans every event out to each meter in order.
type Multi []infergate.Meter

var _ infergate.Meter = Multi(nil)

func (m Multi) OnAdmission(e infergate.AdmissionEvent) {
	for _, x := range m {
		x.OnAdmission(e)
	}
}

func (m Multi) OnCache(e infergate.CacheEvent) {
	for _, x := range m {
		x.OnCache(e)
	}
}

func (m Multi) OnRisk(e infergate.RiskEvent) {
	for _, x := range m {
		x.OnRisk(e)
	}
}

func (m Multi) OnGeneration(e infergate.GenerationEvent) {
	for _, x := range m {
		x.OnGeneration(e)
	}
}

func (m Multi) OnBudgetTripped(e infergate.BudgetEvent) {
	for _, x := range m {
		x.OnBudgetTripped(e)
	}
}

func (m Multi) OnJob(e infergate.JobEvent) {
	for _, x := range m {
		x.OnJob(e)
	}
}
