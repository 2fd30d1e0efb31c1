package session

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
)

// #region state
// State is the mutable per-question state driven by the controller loop.
// One State exists per question and is never shared between goroutines.
type State struct {
	question string
	finalK   int

	registry   *Registry
	batches    []RetrievalBatch
	working    []Chunk
	feedback   *eval.Feedback
	judged     string // answer text the latest feedback refers to
	final      string
	phase      Phase
	transcript []Step
}

// New creates the state for one question. finalK caps the context set.
func New(question string, finalK int) *State {
	if finalK <= 0 {
		finalK = 1
	}
	return &State{
		question: question,
		finalK:   finalK,
		registry: NewRegistry(),
		phase:    PhaseGathering,
	}
}

func (s *State) Question() string { return s.question }
func (s *State) FinalK() int      { return s.finalK }
func (s *State) Phase() Phase     { return s.phase }
func (s *State) Done() bool       { return s.phase == PhaseDone }

// FinalAnswer is empty until Finalize succeeds.
func (s *State) FinalAnswer() string { return s.final }

// Reranked reports whether the current working set has been ordered since
// its content last changed.
func (s *State) Reranked() bool {
	return s.phase == PhaseReviewed || s.phase == PhaseJudged
}

// #endregion state

// #region registry-access
// Register returns the stable id for content.
func (s *State) Register(content string) int {
	return s.registry.Register(content)
}

// ID looks up a chunk id without assigning one.
func (s *State) ID(content string) (int, bool) {
	return s.registry.ID(content)
}

// #endregion registry-access

// #region retrieval-log
// AddRetrievalBatch registers every chunk in the batch, then appends the batch
// to the permanent retrieval log.
func (s *State) AddRetrievalBatch(batch RetrievalBatch) error {
	if s.Done() {
		return ErrSessionDone
	}
	for _, c := range batch.Chunks {
		if c.Content == "" {
			return ErrEmptyContent
		}
	}
	for _, c := range batch.Chunks {
		s.registry.Register(c.Content)
	}
	stored := batch
	stored.Chunks = append([]Chunk(nil), batch.Chunks...)
	s.batches = append(s.batches, stored)
	return nil
}

// Batches returns a copy of the retrieval log.
func (s *State) Batches() []RetrievalBatch {
	return append([]RetrievalBatch(nil), s.batches...)
}

// #endregion retrieval-log

// #region working-set
// ExtendWorkingSet appends chunks whose content is not already in the working
// set, in arrival order. It returns the number appended. Appending new content
// puts the session back into the gathering phase.
//
// "New" is judged against the working set, not the registry: a search
// registers its batch before extending, and a chunk a rerank cut from the
// working set comes back if a later search returns it again.
func (s *State) ExtendWorkingSet(chunks []Chunk) (int, error) {
	if s.Done() {
		return 0, ErrSessionDone
	}
	present := make(map[string]bool, len(s.working))
	for _, c := range s.working {
		present[c.Content] = true
	}
	added := 0
	for _, c := range chunks {
		if c.Content == "" || present[c.Content] {
			continue
		}
		present[c.Content] = true
		s.registry.Register(c.Content)
		s.working = append(s.working, c)
		added++
	}
	if added > 0 {
		s.phase = PhaseGathering
	}
	return added, nil
}

// WorkingSet returns a copy of the chunks currently in play.
func (s *State) WorkingSet() []Chunk {
	return append([]Chunk(nil), s.working...)
}

// ApplyRerank replaces the working set with the ranked order, capped at finalK.
// Chunks not already in the working set are ignored, duplicates are dropped,
// and chunks the ranking omitted fill any remaining slots in their previous
// order. The result is always a subset of the previous working set.
func (s *State) ApplyRerank(ranked []Chunk) ([]Chunk, error) {
	if s.Done() {
		return nil, ErrSessionDone
	}
	byContent := make(map[string]Chunk, len(s.working))
	for _, c := range s.working {
		byContent[c.Content] = c
	}

	limit := min(s.finalK, len(s.working))
	next := make([]Chunk, 0, limit)
	used := make(map[string]bool, limit)
	take := func(content string) {
		if len(next) >= limit || used[content] {
			return
		}
		c, ok := byContent[content]
		if !ok {
			return
		}
		used[content] = true
		next = append(next, c)
	}
	for _, c := range ranked {
		take(c.Content)
	}
	for _, c := range s.working {
		take(c.Content)
	}

	s.working = next
	s.phase = PhaseReviewed
	return append([]Chunk(nil), next...), nil
}

// ContextChunks returns at most finalK chunks from the working set. They serve
// as the judge's reference and as the final citation set.
func (s *State) ContextChunks() []Chunk {
	n := min(s.finalK, len(s.working))
	return append([]Chunk(nil), s.working[:n]...)
}

// #endregion working-set

// #region judgement
// RecordJudgement overwrites the latest feedback.
func (s *State) RecordJudgement(answer string, fb eval.Feedback) error {
	if s.Done() {
		return ErrSessionDone
	}
	s.feedback = &fb
	s.judged = answer
	s.phase = PhaseJudged
	return nil
}

// Feedback returns a copy of the latest judgement, or nil if none exists.
func (s *State) Feedback() *eval.Feedback {
	if s.feedback == nil {
		return nil
	}
	fb := *s.feedback
	return &fb
}

// JudgedAnswer is the draft the latest feedback was given for.
func (s *State) JudgedAnswer() string { return s.judged }

// Finalize records the accepted answer and closes the session. The caller is
// responsible for the threshold gate; Finalize only refuses unjudged sessions.
func (s *State) Finalize(answer string) error {
	if s.Done() {
		return ErrSessionDone
	}
	if s.feedback == nil {
		return ErrNotJudged
	}
	s.final = answer
	s.phase = PhaseDone
	return nil
}

// BestAnswer is the final answer when done, else the latest judged draft.
func (s *State) BestAnswer() string {
	if s.Done() {
		return s.final
	}
	return s.judged
}

// #endregion judgement

// #region transcript
// AppendStep adds a block to the reasoning transcript. The transcript stays
// writable after done so the closing turn is recorded.
func (s *State) AppendStep(step Step) {
	s.transcript = append(s.transcript, step)
}

// Transcript returns a copy of the reasoning transcript.
func (s *State) Transcript() []Step {
	return append([]Step(nil), s.transcript...)
}

// #endregion transcript

// #region format
// FormatContext renders the full working set with chunk ids.
func (s *State) FormatContext() string {
	if len(s.working) == 0 {
		return "(no context retrieved yet)"
	}
	var b strings.Builder
	for _, c := range s.working {
		id, _ := s.registry.ID(c.Content)
		fmt.Fprintf(&b, "[%d] %s\n\n", id, c.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatTranscript renders the transcript in the order it is replayed to the
// decision-maker.
func (s *State) FormatTranscript() string {
	return FormatSteps(s.transcript)
}

// FormatSteps renders transcript blocks.
func FormatSteps(steps []Step) string {
	var b strings.Builder
	for _, st := range steps {
		fmt.Fprintf(&b, "Thought: %s\n", st.Thought)
		fmt.Fprintf(&b, "Action: %s\n", st.Action)
		fmt.Fprintf(&b, "Action Input: %s\n", st.Input)
		fmt.Fprintf(&b, "Observation: %s\n\n", st.Observation)
	}
	return strings.TrimRight(b.String(), "\n")
}

// #endregion format
