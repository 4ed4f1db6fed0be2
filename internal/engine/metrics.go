package engine

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decision outcomes used as metric labels
const (
	OutcomeSuccess         = "success"
	OutcomeEmptyCatalog    = "empty_catalog"
	OutcomeNoCandidates    = "no_candidates"
	OutcomeInvalidCriteria = "invalid_criteria"
	OutcomeError           = "error"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	stageCandidates  *prometheus.GaugeVec
	decisions        *prometheus.CounterVec
	evalDuration     prometheus.Histogram
	factUnavailable  *prometheus.CounterVec
	breakerTrips     prometheus.Counter
	detachedFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageCandidates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "advisor_stage_candidates",
				Help: "Pools remaining after each stage of the last evaluation",
			},
			[]string{"stage"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_decisions_total",
				Help: "Total number of decisions by outcome",
			},
			[]string{"outcome"},
		),
		evalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "advisor_evaluation_duration_seconds",
				Help:    "Evaluation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		factUnavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_fact_unavailable_total",
				Help: "Fact queries that could not be answered, by reason",
			},
			[]string{"reason"},
		),
		breakerTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "advisor_fact_breaker_trips_total",
				Help: "Times the fact store circuit breaker opened",
			},
		),
		detachedFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_detached_task_failures_total",
				Help: "Failed background tasks, by task kind",
			},
			[]string{"task"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.stageCandidates,
			m.decisions,
			m.evalDuration,
			m.factUnavailable,
			m.breakerTrips,
			m.detachedFailures,
		)
	}
	return m
}

// ObserveStage records how many pools survived a stage
func (m *Metrics) ObserveStage(stage string, n int) {
	if m == nil {
		return
	}
	m.stageCandidates.WithLabelValues(stage).Set(float64(n))
}

// ObserveDecision records the outcome and duration of one evaluation
func (m *Metrics) ObserveDecision(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
	m.evalDuration.Observe(d.Seconds())
}

// FactUnavailable counts a fact query that degraded to unknown
func (m *Metrics) FactUnavailable(reason string) {
	if m == nil {
		return
	}
	m.factUnavailable.WithLabelValues(reason).Inc()
}

// BreakerTripped counts a circuit breaker trip
func (m *Metrics) BreakerTripped(string) {
	if m == nil {
		return
	}
	m.breakerTrips.Inc()
}

// DetachedFailed counts a failed background task. Task names look like
// "kind:subject"; only the kind is used as a label.
func (m *Metrics) DetachedFailed(name string) {
	if m == nil {
		return
	}
	kind, _, _ := strings.Cut(name, ":")
	m.detachedFailures.WithLabelValues(kind).Inc()
}
