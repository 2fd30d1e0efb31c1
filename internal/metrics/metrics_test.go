package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums a counter family across series matching label=value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
		return total
	}
	return 0
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRun("succeeded", 5, 2*time.Second)
	m.ObserveAction("vector_search", "ok", 10*time.Millisecond)
	m.ObserveAction("vector_search", "ok", 10*time.Millisecond)
	m.GateVeto("not_judged")
	m.ErrorBudget("parse")

	assert.Equal(t, 1.0, counterValue(t, reg, "agentic_rag_runs_total", "status", "succeeded"))
	assert.Equal(t, 2.0, counterValue(t, reg, "agentic_rag_actions_total", "action", "vector_search"))
	assert.Equal(t, 1.0, counterValue(t, reg, "agentic_rag_gate_vetoes_total", "veto", "not_judged"))
	assert.Equal(t, 1.0, counterValue(t, reg, "agentic_rag_error_budget_spent_total", "class", "parse"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("succeeded", 1, time.Second)
		m.ObserveAction("rerank", "ok", time.Millisecond)
		m.GateVeto("below_threshold")
		m.ErrorBudget("tool")
	})
}

func TestNewWithoutRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
