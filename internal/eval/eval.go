package eval

import (
	"fmt"
	"strings"
)

// #region validate
// Validate reports whether every score lies in [MinScore, MaxScore].
func (f Feedback) Validate() error {
	for _, s := range []struct {
		name  string
		value int
	}{
		{"accuracy", f.Accuracy},
		{"relevance", f.Relevance},
		{"completeness", f.Completeness},
	} {
		if s.value < MinScore || s.value > MaxScore {
			return fmt.Errorf("%s=%d: %w", s.name, s.value, ErrScoreOutOfRange)
		}
	}
	return nil
}

// Validate reports whether every threshold lies in [MinScore, MaxScore].
func (t Thresholds) Validate() error {
	return Feedback{Accuracy: t.Accuracy, Relevance: t.Relevance, Completeness: t.Completeness}.Validate()
}

// String renders "a/r/c".
func (t Thresholds) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Accuracy, t.Relevance, t.Completeness)
}

// #endregion validate

// #region check
// Check compares each score with its threshold. All three checks always run so
// the result names every failing dimension, not just the first.
func Check(f Feedback, t Thresholds) EvalResult {
	metrics := []EvalMetric{
		{Name: "accuracy", Value: f.Accuracy, Threshold: t.Accuracy},
		{Name: "relevance", Value: f.Relevance, Threshold: t.Relevance},
		{Name: "completeness", Value: f.Completeness, Threshold: t.Completeness},
	}

	passed := true
	var failReasons []string
	for i := range metrics {
		metrics[i].Pass = metrics[i].Value >= metrics[i].Threshold
		if !metrics[i].Pass {
			passed = false
			failReasons = append(failReasons, fmt.Sprintf("%s %d < %d",
				metrics[i].Name, metrics[i].Value, metrics[i].Threshold))
		}
	}

	reason := "all checks passed"
	if !passed {
		reason = "below threshold: " + strings.Join(failReasons, ", ")
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion check

// #region format
// Summary renders the scores the way they are shown to the decision-maker.
func (f Feedback) Summary() string {
	return fmt.Sprintf("accuracy=%d/5, relevance=%d/5, completeness=%d/5",
		f.Accuracy, f.Relevance, f.Completeness)
}

// #endregion format
