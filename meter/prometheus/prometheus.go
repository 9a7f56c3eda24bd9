// Package prometheus exports infergate governance events as Prometheus metrics.
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ineyio/infergate"
)

// Meter records governance events into Prometheus collectors.
type Meter struct {
	admissions  *prometheus.CounterVec
	cache       *prometheus.CounterVec
	risk        *prometheus.CounterVec
	generations *prometheus.CounterVec
	costUSD     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	budgetTrips prometheus.Counter
	jobs        *prometheus.CounterVec
}

var _ infergate.Meter = (*Meter)(nil)

// New creates a Meter and registers its collectors with registerer.
// A nil registerer uses prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Meter {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Meter{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infergate_admissions_total",
			Help: "Quota decisions by caller role and outcome.",
		}, []string{"role", "allowed"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infergate_cache_lookups_total",
			Help: "Response cache lookups by result.",
		}, []string{"result"}),
		risk: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infergate_risk_assessments_total",
			Help: "Fraud assessments by escalation outcome.",
		}, []string{"escalated"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infergate_generations_total",
			Help: "Generations by effective tier, mode and whether the fallback was served.",
		}, []string{"tier", "mode", "fallback"}),
		costUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infergate_generation_cost_usd_total",
			Help: "Estimated generation spend in USD by effective tier.",
		}, []string{"tier"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "infergate_generation_duration_seconds",
			Help:    "Upstream generation latency by effective tier.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"tier"}),
		budgetTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "infergate_budget_trips_total",
			Help: "Times the cost governor started downgrading tiers.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infergate_jobs_total",
			Help: "Async jobs reaching a terminal state.",
		}, []string{"status"}),
	}

	registerer.MustRegister(
		m.admissions,
		m.cache,
		m.risk,
		m.generations,
		m.costUSD,
		m.duration,
		m.budgetTrips,
		m.jobs,
	)
	return m
}

func (m *Meter) OnAdmission(e infergate.AdmissionEvent) {
	m.admissions.WithLabelValues(string(e.Role), strconv.FormatBool(e.Allowed)).Inc()
}

func (m *Meter) OnCache(e infergate.CacheEvent) {
	result := "miss"
	if e.Hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Meter) OnRisk(e infergate.RiskEvent) {
	m.risk.WithLabelValues(strconv.FormatBool(e.Escalated)).Inc()
}

func (m *Meter) OnGeneration(e infergate.GenerationEvent) {
	mode := "sync"
	if e.Async {
		mode = "async"
	}
	tier := string(e.Tier)
	m.generations.WithLabelValues(tier, mode, strconv.FormatBool(e.Fallback)).Inc()
	m.costUSD.WithLabelValues(tier).Add(e.CostUSD)
	m.duration.WithLabelValues(tier).Observe(e.Duration.Seconds())
}

func (m *Meter) OnBudgetTripped(infergate.BudgetEvent) {
	m.budgetTrips.Inc()
}

func (m *Meter) OnJob(e infergate.JobEvent) {
	m.jobs.WithLabelValues(string(e.Status)).Inc()
}
