package controller

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

// #region decision-maker
// Exchange is one earlier question/answer pair of the conversation.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Proposal is everything the decision-maker sees for one turn.
type Proposal struct {
	Question   string
	History    []Exchange
	Context    string // full text of the working set, "[id] content" blocks
	Transcript string // every transcript block so far, verbatim
	TurnMarker string // e.g. "Turn 3 of 12"
	Turn       int
	MaxTurns   int
}

// DecisionMaker proposes the next action as free-form text.
type DecisionMaker interface {
	Propose(ctx context.Context, p Proposal) (string, error)
}

// DecisionFunc adapts a function to DecisionMaker.
type DecisionFunc func(ctx context.Context, p Proposal) (string, error)

func (f DecisionFunc) Propose(ctx context.Context, p Proposal) (string, error) { return f(ctx, p) }

// #endregion decision-maker

// #region recorder
// RunRecorder persists run provenance. Failures are logged and never abort a
// run.
type RunRecorder interface {
	StartRun(ctx context.Context, runID, question string, startedAt time.Time) error
	RecordTurn(ctx context.Context, entry logging.TurnEntry) error
	FinishRun(ctx context.Context, summary logging.RunSummary) error
}

// #endregion recorder

// #region config
// RetryConfig shapes the outer exponential backoff around whole runs.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config bounds a run.
type Config struct {
	MaxTurns        int           // MAX_AGENT_TURNS
	MaxErrorRetries int           // MAX_ERROR_RETRIES
	CallTimeout     time.Duration // per external call
	Retry           RetryConfig
}

// DefaultConfig returns 12 turns, 3 error retries, 60s calls and 3 attempts.
func DefaultConfig() Config {
	return Config{
		MaxTurns:        12,
		MaxErrorRetries: 3,
		CallTimeout:     60 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
	}
}

// #endregion config

// #region request-result
// Request is one question to answer.
type Request struct {
	Question string
	History  []Exchange
}

// Status is how a run ended.
type Status string

const (
	StatusSucceeded            Status = "succeeded"
	StatusTurnBudgetExhausted  Status = "turn_budget_exhausted"
	StatusErrorBudgetExhausted Status = "error_budget_exhausted"
)

// Result is the outcome of a run. Answer is the accepted final answer on
// success and the latest judged draft (possibly empty) otherwise.
type Result struct {
	RunID        string
	Status       Status
	Answer       string
	Turns        int
	ErrorRetries int
	Attempts     int
	Context      []session.Chunk
	Transcript   []session.Step
	Batches      []session.RetrievalBatch
	Feedback     *eval.Feedback
}

// Succeeded reports whether the answer passed the gate.
func (r Result) Succeeded() bool { return r.Status == StatusSucceeded }

// #endregion request-result

// #region errors
var (
	ErrNoDecisionMaker = errors.New("controller: decision maker is required")
	ErrNoToolbox       = errors.New("controller: toolbox is required")
	ErrEmptyQuestion   = errors.New("controller: question is empty")
	// ErrDecisionMakerUnavailable means an attempt exhausted its error budget
	// without a single successful proposal.
	ErrDecisionMakerUnavailable = errors.New("controller: decision maker unavailable")
	// ErrCollaboratorPanic wraps a panic recovered during a run.
	ErrCollaboratorPanic = errors.New("controller: collaborator panicked")
)

// #endregion errors
