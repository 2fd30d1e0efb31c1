package gate

import "github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"

// #region veto-type
// VetoType enumerates the reasons a final answer is refused.
type VetoType string

const (
	VetoEmptyAnswer    VetoType = "empty_answer"
	VetoNotJudged      VetoType = "not_judged"
	VetoBelowThreshold VetoType = "below_threshold"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds the score thresholds a judged answer must meet.
type GateConfig struct {
	Thresholds eval.Thresholds
}

// DefaultGateConfig returns the 4/4/4 thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{Thresholds: eval.DefaultThresholds()}
}

// #endregion gate-config

// #region gate-decision
// Decision is the output of the gate evaluation.
type Decision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal // non-empty if vetoed
	Eval        *eval.EvalResult
}

// Committed reports whether the answer may be finalized.
func (d Decision) Committed() bool {
	return d.Action == "commit"
}

// #endregion gate-decision
