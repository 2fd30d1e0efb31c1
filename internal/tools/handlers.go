package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/action"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

// #region search
func (t *Toolbox) vectorSearch(ctx context.Context, st *session.State, act action.Action) (Result, error) {
	query := strings.TrimSpace(act.Query)
	if query == "" {
		return invalid("vector_search needs a non-empty query, e.g. Action Input: {\"query\": \"...\"}"), nil
	}
	if t.deps.Vector == nil {
		return Result{}, fmt.Errorf("vector_search: %w", ErrMissingCollaborator)
	}

	results, err := t.deps.Vector.Search(ctx, query, t.limits.RetrievalK)
	if err != nil {
		return Result{}, fmt.Errorf("vector_search: %w", err)
	}
	return t.recordSearch(st, session.ModalityVector, query, "", results)
}

func (t *Toolbox) textSearch(ctx context.Context, st *session.State, act action.Action) (Result, error) {
	query := strings.TrimSpace(act.Query)
	if query == "" {
		return invalid("text_search needs a non-empty query, ideally one keyword, e.g. Action Input: {\"query\": \"...\"}"), nil
	}
	if t.deps.Text == nil {
		return Result{}, fmt.Errorf("text_search: %w", ErrMissingCollaborator)
	}
	mode, err := retrieval.ParseMode(act.Mode)
	if err != nil {
		mode = retrieval.ModeAuto
	}

	results, err := t.deps.Text.Search(ctx, query, mode, t.limits.RetrievalK)
	if err != nil {
		return Result{}, fmt.Errorf("text_search: %w", err)
	}
	return t.recordSearch(st, session.ModalityText, query, mode, results)
}

// recordSearch logs the batch, grows the working set and lists the top
// results of this call only.
func (t *Toolbox) recordSearch(st *session.State, modality session.Modality, query string, mode retrieval.Mode, results []retrieval.Result) (Result, error) {
	chunks := make([]session.Chunk, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		chunks = append(chunks, toChunk(r))
	}

	if err := st.AddRetrievalBatch(session.RetrievalBatch{Modality: modality, Query: query, Chunks: chunks}); err != nil {
		return Result{}, err
	}
	added, err := st.ExtendWorkingSet(chunks)
	if err != nil {
		return Result{}, err
	}
	t.logger.Debug("search recorded",
		zap.String("modality", string(modality)),
		zap.String("query", query),
		zap.Int("results", len(chunks)),
		zap.Int("added", added))

	name := "vector_search"
	if modality == session.ModalityText {
		name = fmt.Sprintf("text_search (mode=%s)", mode)
	}
	if len(chunks) == 0 {
		return ok(fmt.Sprintf("%s for %q returned no results.", name, query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s for %q returned %d results (%d new in working set).", name, query, len(chunks), added)
	shown := min(len(chunks), t.limits.FinalK)
	fmt.Fprintf(&b, " Top %d:", shown)
	for _, c := range chunks[:shown] {
		id, _ := st.ID(c.Content)
		fmt.Fprintf(&b, "\n[%d] ", id)
		if kw, _ := c.Metadata["keywords"].([]string); len(kw) > 0 {
			fmt.Fprintf(&b, "(keywords: %s) ", strings.Join(kw, ", "))
		}
		b.WriteString(Snippet(c.Content, t.limits.SnippetLength))
	}
	return ok(b.String()), nil
}

func toChunk(r retrieval.Result) session.Chunk {
	md := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		md[k] = v
	}
	if r.Score != 0 {
		md["score"] = r.Score
	}
	if len(r.Keywords) > 0 {
		md["keywords"] = append([]string(nil), r.Keywords...)
	}
	return session.Chunk{Content: r.Content, Metadata: md}
}

// #endregion search

// #region rerank
func (t *Toolbox) rerank(ctx context.Context, st *session.State) (Result, error) {
	if len(st.WorkingSet()) == 0 {
		return ok("Nothing to rerank: the working set is empty. Run vector_search or text_search first."), nil
	}
	kept, err := t.applyRerank(ctx, st)
	if err != nil {
		return Result{}, err
	}
	ids := make([]string, len(kept))
	for i, c := range kept {
		id, _ := st.ID(c.Content)
		ids[i] = fmt.Sprintf("[%d]", id)
	}
	return ok(fmt.Sprintf("Reranked working set; kept %d chunks in order: %s", len(kept), strings.Join(ids, ", "))), nil
}

func (t *Toolbox) applyRerank(ctx context.Context, st *session.State) ([]session.Chunk, error) {
	if t.deps.Reranker == nil {
		return nil, fmt.Errorf("rerank: %w", ErrMissingCollaborator)
	}
	ranked, err := t.deps.Reranker.Rerank(ctx, st.Question(), st.WorkingSet())
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return st.ApplyRerank(ranked)
}

// #endregion rerank

// #region judge
func (t *Toolbox) judgeAnswer(ctx context.Context, st *session.State, act action.Action) (Result, error) {
	answer := strings.TrimSpace(act.Answer)
	if answer == "" {
		return invalid("judge_answer needs your complete draft answer, e.g. Action Input: {\"answer\": \"...\"}"), nil
	}
	if t.deps.Judge == nil {
		return Result{}, fmt.Errorf("judge_answer: %w", ErrMissingCollaborator)
	}

	// unranked content is reranked before it is used as reference. Reranked
	// follows the phase, so a search that added chunks after an explicit
	// rerank triggers another rerank here.
	if len(st.WorkingSet()) > 0 && !st.Reranked() {
		if _, err := t.applyRerank(ctx, st); err != nil {
			return Result{}, fmt.Errorf("judge_answer: %w", err)
		}
		t.logger.Debug("reranked before judging", zap.Int("context", len(st.ContextChunks())))
	}

	fb, err := t.deps.Judge.Score(ctx, st.Question(), answer, reference(st))
	if err != nil {
		return Result{}, fmt.Errorf("judge_answer: %w", err)
	}
	if err := fb.Validate(); err != nil {
		return Result{}, fmt.Errorf("judge_answer: %w", err)
	}
	if err := st.RecordJudgement(answer, fb); err != nil {
		return Result{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scores: %s.", fb.Summary())
	if fb.Feedback != "" {
		fmt.Fprintf(&b, " Feedback: %s", fb.Feedback)
	}
	check := t.gate.Evaluate(answer, &fb)
	if check.Committed() {
		b.WriteString("\nAll thresholds met. Call final_answer with this answer.")
	} else if check.Eval != nil {
		th := t.gate.Thresholds()
		fmt.Fprintf(&b, "\nNot ready: %s (required accuracy>=%d, relevance>=%d, completeness>=%d). Improve the answer, searching for more context if needed, and call judge_answer again.",
			check.Eval.Reason, th.Accuracy, th.Relevance, th.Completeness)
	}
	return ok(b.String()), nil
}

// reference renders the context chunks given to the judge.
func reference(st *session.State) string {
	chunks := st.ContextChunks()
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		id, _ := st.ID(c.Content)
		parts = append(parts, fmt.Sprintf("[%d] %s", id, c.Content))
	}
	return strings.Join(parts, "\n\n")
}

// #endregion judge

// #region final
func (t *Toolbox) finalAnswer(st *session.State, act action.Action) (Result, error) {
	answer := strings.TrimSpace(act.Answer)
	latest := st.Feedback()

	decision := t.gate.Evaluate(answer, latest)
	if !decision.Committed() {
		for _, v := range decision.VetoSignals {
			t.metrics.GateVeto(string(v.Type))
		}
		t.logger.Debug("final answer rejected", zap.String("reason", decision.Reason))
		return Result{Observation: t.gate.Guidance(decision, latest), Outcome: OutcomeRejected}, nil
	}

	if err := st.Finalize(answer); err != nil {
		return Result{}, err
	}
	return Result{Observation: "Final answer accepted.", Outcome: OutcomeFinalized}, nil
}

// #endregion final

// #region helpers
// Snippet collapses whitespace and truncates text to n runes with an
// ellipsis. n <= 0 disables truncation.
func Snippet(text string, n int) string {
	s := strings.Join(strings.Fields(text), " ")
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

func ok(obs string) Result { return Result{Observation: obs, Outcome: OutcomeOK} }

func invalid(obs string) Result { return Result{Observation: obs, Outcome: OutcomeInvalidInput} }

// #endregion helpers
