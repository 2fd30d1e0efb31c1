package gate

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
)

// #region gate
// Gate decides whether a final answer may be committed. Both conditions are
// checked on every call: the session must have been judged at least once, and
// the latest judgement must meet every threshold.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Thresholds returns the configured thresholds.
func (g *Gate) Thresholds() eval.Thresholds {
	return g.config.Thresholds
}

// Evaluate checks the proposed final answer against the latest judgement.
// latest is nil when judge_answer has not run in this session.
func (g *Gate) Evaluate(answer string, latest *eval.Feedback) Decision {
	var vetoes []VetoSignal

	if strings.TrimSpace(answer) == "" {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoEmptyAnswer,
			Reason: "final_answer requires a non-empty answer",
		})
	}

	if latest == nil {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNotJudged,
			Reason: "judge_answer has not been called in this session",
		})
		return reject(vetoes, nil)
	}

	result := eval.Check(*latest, g.config.Thresholds)
	if !result.Passed {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoBelowThreshold,
			Reason: result.Reason,
		})
	}

	if len(vetoes) > 0 {
		return reject(vetoes, &result)
	}

	return Decision{
		Action: "commit",
		Reason: fmt.Sprintf("passed gate: %s", latest.Summary()),
		Eval:   &result,
	}
}

func reject(vetoes []VetoSignal, result *eval.EvalResult) Decision {
	return Decision{
		Action:      "reject",
		Reason:      fmt.Sprintf("veto: %s", vetoes[0].Reason),
		Vetoed:      true,
		VetoSignals: vetoes,
		Eval:        result,
	}
}

// #endregion gate

// #region guidance
// Guidance renders the corrective observation for a rejected decision.
// It names the missing workflow step, or the current and required scores.
func (g *Gate) Guidance(d Decision, latest *eval.Feedback) string {
	if d.Committed() {
		return ""
	}
	var b strings.Builder
	b.WriteString("final_answer was not accepted.")
	for _, v := range d.VetoSignals {
		switch v.Type {
		case VetoEmptyAnswer:
			b.WriteString(" Provide the complete answer text in Action Input.")
		case VetoNotJudged:
			b.WriteString(" You must call judge_answer with your draft answer before final_answer.")
		case VetoBelowThreshold:
			t := g.config.Thresholds
			fmt.Fprintf(&b, " Current scores: accuracy=%d, relevance=%d, completeness=%d; required: accuracy>=%d, relevance>=%d, completeness>=%d.",
				latest.Accuracy, latest.Relevance, latest.Completeness,
				t.Accuracy, t.Relevance, t.Completeness)
			b.WriteString(" Improve the answer (search for more context if needed) and call judge_answer again.")
		}
	}
	return b.String()
}

// #endregion guidance
