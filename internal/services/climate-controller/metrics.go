package climate_controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Action outcomes.
const (
	OutcomeExecuted        = "executed"
	OutcomeFailed          = "failed"
	OutcomeRateLimited     = "rate_limited"
	OutcomeSkippedCooldown = "skipped_cooldown"
	OutcomeSkippedNoop     = "skipped_noop"
)

type Metrics struct {
	cycles        *prometheus.CounterVec
	actions       *prometheus.CounterVec
	problems      *prometheus.GaugeVec
	cycleDuration prometheus.Histogram
}

// NewMetrics registers the controller collectors on reg; a nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "climate_cycles_total",
			Help: "Control cycles by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "climate_actions_total",
			Help: "Executed plan actions by device and outcome.",
		}, []string{"device", "outcome"}),
		problems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climate_problem_severity",
			Help: "Severity of the problems found by the last cycle (0 when absent).",
		}, []string{"type"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "climate_cycle_duration_seconds",
			Help:    "Wall time of a control cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.actions, m.problems, m.cycleDuration)
	}
	return m
}

func (m *Metrics) cycle(trigger, outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) action(device, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(device, outcome).Inc()
}

func (m *Metrics) observeCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) setProblems(sev map[string]int) {
	if m == nil {
		return
	}
	m.problems.Reset()
	for t, s := range sev {
		m.problems.WithLabelValues(t).Set(float64(s))
	}
}
