package eval

import "errors"

// ErrScoreOutOfRange is returned when a judge score falls outside 1-5.
var ErrScoreOutOfRange = errors.New("score out of range")

const (
	MinScore = 1
	MaxScore = 5
)

// #region feedback
// Feedback is the latest quality judgement of a draft answer.
// Only the most recent value is authoritative for a session.
type Feedback struct {
	Accuracy     int    `json:"accuracy"`
	Relevance    int    `json:"relevance"`
	Completeness int    `json:"completeness"`
	Feedback     string `json:"feedback"`
}

// #endregion feedback

// #region thresholds
// Thresholds are the minimum scores a judged answer needs before it can be finalized.
type Thresholds struct {
	Accuracy     int `json:"accuracy"`
	Relevance    int `json:"relevance"`
	Completeness int `json:"completeness"`
}

// DefaultThresholds returns 4/4/4.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Accuracy:     4,
		Relevance:    4,
		Completeness: 4,
	}
}

// #endregion thresholds

// #region eval-metric
// EvalMetric captures a single threshold check.
type EvalMetric struct {
	Name      string
	Value     int
	Threshold int
	Pass      bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of checking feedback against thresholds.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// Failed returns the metrics that did not meet their threshold.
func (r EvalResult) Failed() []EvalMetric {
	var out []EvalMetric
	for _, m := range r.Metrics {
		if !m.Pass {
			out = append(out, m)
		}
	}
	return out
}

// #endregion eval-result
