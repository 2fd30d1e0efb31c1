package replay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/gate"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/tools"
)

var errScriptExhausted = errors.New("replay: decision script exhausted")

// #region types
// ReplayResult captures the outcome of replaying one fixture.
type ReplayResult struct {
	Name       string
	Run        controller.Result
	Outcomes   []string // per recorded turn, decision failures included
	Err        error
	Mismatches []string
}

// Passed reports whether the run matched every expectation.
func (r ReplayResult) Passed() bool { return len(r.Mismatches) == 0 }

// ReplaySummary provides aggregate stats from a set of replays.
type ReplaySummary struct {
	Total      int
	Passed     int
	Failed     int
	TotalTurns int
	ByStatus   map[string]int
}

// #endregion types

// #region collaborators
type scriptedDecisions struct {
	mu      sync.Mutex
	outputs []string
	next    int
}

func (s *scriptedDecisions) Propose(_ context.Context, _ controller.Proposal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.outputs) {
		return "", errScriptExhausted
	}
	out := s.outputs[s.next]
	s.next++
	if out == DecisionError {
		return "", errors.New("replay: scripted decision failure")
	}
	return out, nil
}

type cannedVector map[string][]FixturePassage

func (c cannedVector) Search(_ context.Context, query string, k int) ([]retrieval.Result, error) {
	res := toResults(c[query])
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

type cannedText map[string][]FixturePassage

func (c cannedText) Search(_ context.Context, query string, _ retrieval.Mode, max int) ([]retrieval.Result, error) {
	res := toResults(c[query])
	if max > 0 && len(res) > max {
		res = res[:max]
	}
	return res, nil
}

type policyReranker struct{ reverse bool }

func (p policyReranker) Rerank(_ context.Context, _ string, chunks []session.Chunk) ([]session.Chunk, error) {
	out := append([]session.Chunk(nil), chunks...)
	if p.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// sequentialJudge returns scores in order and repeats the last one.
type sequentialJudge struct {
	mu     sync.Mutex
	scores []eval.Feedback
	next   int
}

func (s *sequentialJudge) Score(_ context.Context, _, _, _ string) (eval.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.scores) == 0 {
		return eval.Feedback{}, errors.New("replay: no judge scores")
	}
	i := min(s.next, len(s.scores)-1)
	s.next++
	return s.scores[i], nil
}

// outcomeRecorder keeps the turn outcomes of one run.
type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeRecorder) StartRun(context.Context, string, string, time.Time) error { return nil }

func (o *outcomeRecorder) RecordTurn(_ context.Context, e logging.TurnEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, e.Outcome)
	return nil
}

func (o *outcomeRecorder) FinishRun(context.Context, logging.RunSummary) error { return nil }

// #endregion collaborators

// #region replay
// Replay runs f through the real controller and toolbox with scripted
// collaborators and compares the outcome with f.Expected.
func Replay(ctx context.Context, f *Fixture, logger *zap.Logger) ReplayResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := tools.Deps{
		Vector:   cannedVector(f.VectorResults),
		Text:     cannedText(f.TextResults),
		Reranker: policyReranker{reverse: strings.EqualFold(f.Rerank, "reverse")},
		Judge:    &sequentialJudge{scores: f.JudgeScores},
	}
	g := gate.NewGate(gate.GateConfig{Thresholds: f.Config.ToThresholds()})
	tb := tools.NewToolbox(deps, g, f.Config.ToLimits(), tools.WithLogger(logger))

	dm := &scriptedDecisions{outputs: f.Decisions}
	rec := &outcomeRecorder{}
	c, err := controller.New(dm, tb, f.Config.ToControllerConfig(),
		controller.WithLogger(logger), controller.WithRecorder(rec))
	if err != nil {
		return ReplayResult{Name: f.Description, Err: err, Mismatches: []string{err.Error()}}
	}

	res, err := c.Run(ctx, controller.Request{Question: f.Question, History: f.ToHistory()})
	out := ReplayResult{Name: f.Description, Run: res, Outcomes: rec.outcomes, Err: err}
	if err != nil {
		out.Mismatches = append(out.Mismatches, fmt.Sprintf("run error: %v", err))
	}
	out.Mismatches = append(out.Mismatches, compare(f.Expected, res, rec.outcomes)...)
	return out
}

func compare(want FixtureExpected, got controller.Result, outcomes []string) []string {
	var diffs []string
	if want.Status != "" && want.Status != string(got.Status) {
		diffs = append(diffs, fmt.Sprintf("status: want %s, got %s", want.Status, got.Status))
	}
	if want.Answer != "" && want.Answer != got.Answer {
		diffs = append(diffs, fmt.Sprintf("answer: want %q, got %q", want.Answer, got.Answer))
	}
	if want.Turns > 0 && want.Turns != got.Turns {
		diffs = append(diffs, fmt.Sprintf("turns: want %d, got %d", want.Turns, got.Turns))
	}
	if want.ErrorRetries != nil && *want.ErrorRetries != got.ErrorRetries {
		diffs = append(diffs, fmt.Sprintf("error_retries: want %d, got %d", *want.ErrorRetries, got.ErrorRetries))
	}
	if len(want.Outcomes) > 0 {
		if strings.Join(want.Outcomes, ",") != strings.Join(outcomes, ",") {
			diffs = append(diffs, fmt.Sprintf("outcomes: want %v, got %v", want.Outcomes, outcomes))
		}
	}
	return diffs
}

// ReplayFiles loads and replays each fixture path. A fixture that fails to
// load is reported as a failed result.
func ReplayFiles(ctx context.Context, paths []string, logger *zap.Logger) []ReplayResult {
	results := make([]ReplayResult, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFixture(p)
		if err != nil {
			results = append(results, ReplayResult{Name: filepath.Base(p), Err: err, Mismatches: []string{err.Error()}})
			continue
		}
		if f.Description == "" {
			f.Description = filepath.Base(p)
		}
		results = append(results, Replay(ctx, f, logger))
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{Total: len(results), ByStatus: map[string]int{}}
	for _, r := range results {
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
		s.TotalTurns += r.Run.Turns
		status := string(r.Run.Status)
		if status == "" {
			status = "failed"
		}
		s.ByStatus[status]++
	}
	return s
}

// #endregion replay
