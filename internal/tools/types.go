package tools

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

// #region collaborators
// VectorRetriever returns up to k passages ordered most to least similar.
type VectorRetriever interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

// TextRetriever runs keyword search, at most one result per source document.
type TextRetriever interface {
	Search(ctx context.Context, query string, mode retrieval.Mode, maxResults int) ([]retrieval.Result, error)
}

// Reranker returns a permutation of chunks ordered by relevance to question.
type Reranker interface {
	Rerank(ctx context.Context, question string, chunks []session.Chunk) ([]session.Chunk, error)
}

// Judge scores a draft answer against reference text.
type Judge interface {
	Score(ctx context.Context, question, answer, reference string) (eval.Feedback, error)
}

// Deps bundles the collaborators. All must be safe for concurrent use when
// shared across sessions.
type Deps struct {
	Vector   VectorRetriever
	Text     TextRetriever
	Reranker Reranker
	Judge    Judge
}

// #endregion collaborators

// #region limits
// Limits are the retrieval sizes applied by the handlers.
type Limits struct {
	RetrievalK    int // results requested per search
	FinalK        int // results listed per observation; working set cap after rerank
	SnippetLength int // max runes of chunk text per listed result
}

// DefaultLimits returns RETRIEVAL_K=20, FINAL_K=5, CHUNK_SNIPPET_LENGTH=200.
func DefaultLimits() Limits {
	return Limits{RetrievalK: 20, FinalK: 5, SnippetLength: 200}
}

// #endregion limits

// #region outcome
// Outcome classifies a handled action for the controller.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeInvalidInput Outcome = "invalid_input" // missing query or answer
	OutcomeRejected     Outcome = "gate_rejected" // final_answer refused by the gate
	OutcomeFinalized    Outcome = "finalized"
	OutcomeToolError    Outcome = "tool_error"
)

// Result is a handler's observation and classification.
type Result struct {
	Observation string
	Outcome     Outcome
}

// #endregion outcome

var (
	// ErrUnknownAction is returned by Dispatch for kinds without a handler.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingCollaborator is returned when the handler's dependency is nil.
	ErrMissingCollaborator = errors.New("tool collaborator not configured")
)
