// Package metrics holds the Prometheus collectors for controller runs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agentic_rag"

// Metrics groups the controller's collectors.
type Metrics struct {
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	turns        prometheus.Histogram
	actions      *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	gateVetoes   *prometheus.CounterVec
	errorBudget  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration, which tests use to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Controller runs by terminal status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a controller run, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		turns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_turns",
			Help:      "Turns consumed per run.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Dispatched actions by kind and outcome.",
		}, []string{"action", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Latency of tool handlers, external calls included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		gateVetoes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_vetoes_total",
			Help:      "Rejected final answers by veto type.",
		}, []string{"veto"}),
		errorBudget: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_budget_spent_total",
			Help:      "Error budget increments by error class.",
		}, []string{"class"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.runDuration, m.turns, m.actions, m.toolDuration, m.gateVetoes, m.errorBudget)
	}
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, turns int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.turns.Observe(float64(turns))
	m.runDuration.Observe(elapsed.Seconds())
}

// ObserveAction records one dispatched action.
func (m *Metrics) ObserveAction(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.toolDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// GateVeto records one veto signal raised against a final answer.
func (m *Metrics) GateVeto(veto string) {
	if m == nil {
		return
	}
	m.gateVetoes.WithLabelValues(veto).Inc()
}

// ErrorBudget records one increment of a run's error budget.
func (m *Metrics) ErrorBudget(class string) {
	if m == nil {
		return
	}
	m.errorBudget.WithLabelValues(class).Inc()
}
