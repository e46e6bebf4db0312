// Package metrics defines the Prometheus collectors for evaluation runs and
// decision services. Collectors are registered on a caller-supplied
// registerer so tests and multiple services never collide.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spachava753/incidentbench/internal/breaker"
	"github.com/spachava753/incidentbench/internal/models"
)

const namespace = "incidentbench"

// RunMetrics instruments the trial orchestrator.
type RunMetrics struct {
	// Labels: condition, fallback
	TrialsTotal *prometheus.CounterVec
	// Labels: condition, type
	AttemptFailuresTotal *prometheus.CounterVec
	// Labels: condition
	T2USeconds *prometheus.HistogramVec
	// Labels: endpoint. 0 closed, 1 half-open, 2 open.
	BreakerState *prometheus.GaugeVec
	// Labels: state
	RunState *prometheus.GaugeVec
}

// NewRunMetrics creates and registers run collectors on reg.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	f := promauto.With(reg)
	return &RunMetrics{
		TrialsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "trials_total",
			Help:      "Completed trials by condition and whether the fallback path produced them",
		}, []string{"condition", "fallback"}),
		AttemptFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "attempt_failures_total",
			Help:      "Failed downstream attempts by condition and error type",
		}, []string{"condition", "type"}),
		T2USeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "t2u_seconds",
			Help:      "Time to understanding recorded per trial",
			Buckets:   []float64{1, 5, 10, 30, 60, 90, 120, 180, 300},
		}, []string{"condition"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per downstream endpoint (0 closed, 1 half-open, 2 open)",
		}, []string{"endpoint"}),
		RunState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "state",
			Help:      "1 for the state the run is currently in",
		}, []string{"state"}),
	}
}

// ObserveTrial records a completed trial.
func (m *RunMetrics) ObserveTrial(rec models.TrialRecord) {
	if m == nil {
		return
	}
	c := string(rec.Condition)
	m.TrialsTotal.WithLabelValues(c, strconv.FormatBool(rec.Fallback)).Inc()
	m.T2USeconds.WithLabelValues(c).Observe(rec.T2U)
}

// ObserveAttemptFailure records one failed downstream attempt.
func (m *RunMetrics) ObserveAttemptFailure(c models.Condition, t models.ErrorType) {
	if m == nil {
		return
	}
	m.AttemptFailuresTotal.WithLabelValues(string(c), string(t)).Inc()
}

// SetBreakerState records the breaker state of endpoint.
func (m *RunMetrics) SetBreakerState(endpoint string, s breaker.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(endpoint).Set(BreakerStateValue(s))
}

// SetRunState marks s as the current run state.
func (m *RunMetrics) SetRunState(s models.RunState) {
	if m == nil {
		return
	}
	m.RunState.Reset()
	m.RunState.WithLabelValues(string(s)).Set(1)
}

// ServiceMetrics instruments a decision service.
type ServiceMetrics struct {
	// Labels: endpoint, status
	RequestsTotal *prometheus.CounterVec
	// Labels: outcome (success, error, circuit_open, fallback)
	LLMCallsTotal *prometheus.CounterVec
	// Labels: agent
	LLMDurationSeconds *prometheus.HistogramVec
	BreakerState       prometheus.Gauge
}

// NewServiceMetrics creates and registers collectors for the named service.
func NewServiceMetrics(reg prometheus.Registerer, service string) *ServiceMetrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"service": service}
	return &ServiceMetrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "service",
			Name:        "requests_total",
			Help:        "HTTP requests by endpoint and status code",
			ConstLabels: labels,
		}, []string{"endpoint", "status"}),
		LLMCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "service",
			Name:        "llm_calls_total",
			Help:        "Language model calls by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		LLMDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "service",
			Name:        "llm_duration_seconds",
			Help:        "Language model call duration",
			ConstLabels: labels,
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent"}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "service",
			Name:        "breaker_state",
			Help:        "Circuit breaker state guarding the language model (0 closed, 1 half-open, 2 open)",
			ConstLabels: labels,
		}),
	}
}

// ObserveLLM records one language model call outcome.
func (m *ServiceMetrics) ObserveLLM(outcome string) {
	if m == nil {
		return
	}
	m.LLMCallsTotal.WithLabelValues(outcome).Inc()
}

// BreakerStateValue maps a breaker state onto its gauge value.
func BreakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return 0
	}
}
