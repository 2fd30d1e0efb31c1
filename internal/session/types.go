package session

import "errors"

var (
	// ErrSessionDone is returned by any mutation after a final answer was accepted.
	ErrSessionDone = errors.New("session already finalized")
	// ErrEmptyContent is returned when registering a chunk without content.
	ErrEmptyContent = errors.New("chunk content is empty")
	// ErrNotJudged is returned by Finalize when no judgement exists.
	ErrNotJudged = errors.New("no judgement recorded")
)

// #region chunk
// Chunk is a retrieved passage. Identity is exact content equality.
type Chunk struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// #endregion chunk

// #region retrieval-batch
// Modality identifies which index produced a batch.
type Modality string

const (
	ModalityVector Modality = "vector"
	ModalityText   Modality = "text"
)

// RetrievalBatch is one search as performed. Batches are appended, never mutated.
type RetrievalBatch struct {
	Modality Modality `json:"modality"`
	Query    string   `json:"query"`
	Chunks   []Chunk  `json:"chunks"`
}

// #endregion retrieval-batch

// #region step
// Step is one reasoning transcript block.
type Step struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	Input       string `json:"input"`
	Observation string `json:"observation"`
}

// #endregion step

// #region phase
// Phase is the workflow position of a session.
//
//	gathering -> reviewed (rerank) -> judged (judge_answer) -> done (passing final_answer)
//
// A search that adds unranked content moves the session back to gathering.
// done is terminal.
type Phase string

const (
	PhaseGathering Phase = "gathering"
	PhaseReviewed  Phase = "reviewed"
	PhaseJudged    Phase = "judged"
	PhaseDone      Phase = "done"
)

// #endregion phase
