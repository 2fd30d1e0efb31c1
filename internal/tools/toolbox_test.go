package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/action"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

// #region fakes
type fakeVector struct {
	results map[string][]retrieval.Result
	err     error
	calls   []string
}

func (f *fakeVector) Search(_ context.Context, query string, k int) ([]retrieval.Result, error) {
	f.calls = append(f.calls, query)
	if f.err != nil {
		return nil, f.err
	}
	res := f.results[query]
	if len(res) > k {
		res = res[:k]
	}
	return res, nil
}

type fakeText struct {
	results  []retrieval.Result
	lastMode retrieval.Mode
}

func (f *fakeText) Search(_ context.Context, _ string, mode retrieval.Mode, _ int) ([]retrieval.Result, error) {
	f.lastMode = mode
	return f.results, nil
}

// reverseReranker returns the chunks in reverse order.
type reverseReranker struct {
	calls int
	err   error
}

func (r *reverseReranker) Rerank(_ context.Context, _ string, chunks []session.Chunk) ([]session.Chunk, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]session.Chunk, len(chunks))
	for i, c := range chunks {
		out[len(chunks)-1-i] = c
	}
	return out, nil
}

type scriptedJudge struct {
	scores    []eval.Feedback
	calls     int
	reference string
}

func (j *scriptedJudge) Score(_ context.Context, _, _, reference string) (eval.Feedback, error) {
	j.reference = reference
	if j.calls >= len(j.scores) {
		return eval.Feedback{}, errors.New("judge script exhausted")
	}
	fb := j.scores[j.calls]
	j.calls++
	return fb, nil
}

func passages(prefix string, n int) []retrieval.Result {
	out := make([]retrieval.Result, n)
	for i := range out {
		out[i] = retrieval.Result{Content: fmt.Sprintf("%s passage %d", prefix, i+1), Score: 1 - float64(i)/10}
	}
	return out
}

func newTestToolbox(deps Deps) *Toolbox {
	return NewToolbox(deps, nil, Limits{RetrievalK: 20, FinalK: 3, SnippetLength: 40})
}

// #endregion fakes

func TestVectorSearchListsOnlyThisCall(t *testing.T) {
	vec := &fakeVector{results: map[string][]retrieval.Result{
		"first":  passages("alpha", 4),
		"second": append(passages("alpha", 1), passages("beta", 2)...),
	}}
	tb := newTestToolbox(Deps{Vector: vec})
	st := session.New("q", 3)

	res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindVectorSearch, Query: "first"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Contains(t, res.Observation, "returned 4 results (4 new in working set)")
	assert.Contains(t, res.Observation, "[1] alpha passage 1")
	assert.NotContains(t, res.Observation, "[4]", "only FINAL_K results are listed")

	res, err = tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindVectorSearch, Query: "second"})
	require.NoError(t, err)
	assert.Contains(t, res.Observation, "returned 3 results (2 new in working set)")
	assert.Contains(t, res.Observation, "[1] alpha passage 1")
	assert.Contains(t, res.Observation, "[5] beta passage 1")
	assert.NotContains(t, res.Observation, "alpha passage 2")

	assert.Len(t, st.WorkingSet(), 6)
	assert.Len(t, st.Batches(), 2)
}

func TestSearchRequiresQuery(t *testing.T) {
	tb := newTestToolbox(Deps{Vector: &fakeVector{}, Text: &fakeText{}})
	st := session.New("q", 3)

	for _, kind := range []action.Kind{action.KindVectorSearch, action.KindTextSearch} {
		res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: kind, Query: "  "})
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidInput, res.Outcome)
	}
	assert.Empty(t, st.Batches())
}

func TestVectorSearchNoResults(t *testing.T) {
	tb := newTestToolbox(Deps{Vector: &fakeVector{}})
	st := session.New("q", 3)

	res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindVectorSearch, Query: "nothing"})
	require.NoError(t, err)
	assert.Contains(t, res.Observation, "returned no results")
	assert.Len(t, st.Batches(), 1, "empty searches are still logged")
}

func TestSearchErrorIsToolError(t *testing.T) {
	tb := newTestToolbox(Deps{Vector: &fakeVector{err: errors.New("index down")}})
	st := session.New("q", 3)

	res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindVectorSearch, Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index down")
	assert.Equal(t, OutcomeToolError, res.Outcome)
}

func TestTextSearchModeAndKeywords(t *testing.T) {
	text := &fakeText{results: []retrieval.Result{
		{Content: "Nausea was reported in 3% of patients.", Keywords: []string{"nausea"}},
	}}
	tb := newTestToolbox(Deps{Text: text})
	st := session.New("q", 3)

	res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindTextSearch, Query: "nausea", Mode: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.ModeAuto, text.lastMode)
	assert.Contains(t, res.Observation, "(keywords: nausea)")
	assert.Contains(t, res.Observation, "mode=auto")

	_, err = tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindTextSearch, Query: "nausea", Mode: "OR"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.ModeOr, text.lastMode)
	assert.Equal(t, session.ModalityText, st.Batches()[0].Modality)
}

func TestRerankEmptyWorkingSet(t *testing.T) {
	rr := &reverseReranker{}
	tb := newTestToolbox(Deps{Reranker: rr})
	st := session.New("q", 3)

	res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindRerank})
	require.NoError(t, err)
	assert.Contains(t, res.Observation, "working set is empty")
	assert.Zero(t, rr.calls)
	assert.False(t, st.Reranked())
}

func TestRerankReplacesWorkingSet(t *testing.T) {
	vec := &fakeVector{results: map[string][]retrieval.Result{"q": passages("p", 5)}}
	rr := &reverseReranker{}
	tb := newTestToolbox(Deps{Vector: vec, Reranker: rr})
	st := session.New("q", 3)

	_, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindVectorSearch, Query: "q"})
	require.NoError(t, err)

	res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindRerank})
	require.NoError(t, err)
	assert.Equal(t, "Reranked working set; kept 3 chunks in order: [5], [4], [3]", res.Observation)
	assert.True(t, st.Reranked())
	assert.Len(t, st.WorkingSet(), 3)
}

func TestJudgeSafetyNetReranks(t *testing.T) {
	vec := &fakeVector{results: map[string][]retrieval.Result{"q": passages("p", 4)}}
	rr := &reverseReranker{}
	judge := &scriptedJudge{scores: []eval.Feedback{{Accuracy: 5, Relevance: 5, Completeness: 3, Feedback: "missing detail"}}}
	tb := newTestToolbox(Deps{Vector: vec, Reranker: rr, Judge: judge})
	st := session.New("q", 3)

	_, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindVectorSearch, Query: "q"})
	require.NoError(t, err)

	res, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindJudgeAnswer, Answer: "draft"})
	require.NoError(t, err)
	assert.Equal(t, 1, rr.calls, "judge reranks unranked context first")
	assert.True(t, strings.HasPrefix(judge.reference, "[4] p passage 4"))
	assert.Contains(t, res.Observation, "accuracy=5/5, relevance=5/5, completeness=3/5")
	assert.Contains(t, res.Observation, "missing detail")
	assert.Contains(t, res.Observation, "completeness 3 < 4")
	assert.False(t, st.Done())
	assert.Equal(t, session.PhaseJudged, st.Phase())
}

func TestJudgeSkipsRerankWhenAlreadyReviewed(t *testing.T) {
	vec := &fakeVector{results: map[string][]retrieval.Result{"q": passages("p", 2)}}
	rr := &reverseReranker{}
	judge := &scriptedJudge{scores: []eval.Feedback{{Accuracy: 4, Relevance: 4, Completeness: 4}}}
	tb := newTestToolbox(Deps{Vector: vec, Reranker: rr, Judge: judge})
	st := session.New("q", 3)

	ctx := context.Background()
	_, err := tb.Dispatch(ctx, st, action.Action{Kind: action.KindVectorSearch, Query: "q"})
	require.NoError(t, err)
	_, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindRerank})
	require.NoError(t, err)

	res, err := tb.Dispatch(ctx, st, action.Action{Kind: action.KindJudgeAnswer, Answer: "draft"})
	require.NoError(t, err)
	assert.Equal(t, 1, rr.calls)
	assert.Contains(t, res.Observation, "All thresholds met")
}

func TestJudgeRerankAgainAfterNewSearch(t *testing.T) {
	vec := &fakeVector{results: map[string][]retrieval.Result{
		"q":    passages("p", 2),
		"more": passages("m", 1),
	}}
	rr := &reverseReranker{}
	judge := &scriptedJudge{scores: []eval.Feedback{{Accuracy: 4, Relevance: 4, Completeness: 4}}}
	tb := newTestToolbox(Deps{Vector: vec, Reranker: rr, Judge: judge})
	st := session.New("q", 5)

	ctx := context.Background()
	_, err := tb.Dispatch(ctx, st, action.Action{Kind: action.KindVectorSearch, Query: "q"})
	require.NoError(t, err)
	_, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindRerank})
	require.NoError(t, err)
	_, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindVectorSearch, Query: "more"})
	require.NoError(t, err)
	require.False(t, st.Reranked())

	_, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindJudgeAnswer, Answer: "draft"})
	require.NoError(t, err)
	assert.Equal(t, 2, rr.calls, "new content is ranked before judging")
	assert.Equal(t, session.PhaseJudged, st.Phase())
}

func TestJudgeRejectsOutOfRangeScores(t *testing.T) {
	judge := &scriptedJudge{scores: []eval.Feedback{{Accuracy: 9, Relevance: 4, Completeness: 4}}}
	tb := newTestToolbox(Deps{Judge: judge})
	st := session.New("q", 3)

	_, err := tb.Dispatch(context.Background(), st, action.Action{Kind: action.KindJudgeAnswer, Answer: "draft"})
	require.ErrorIs(t, err, eval.ErrScoreOutOfRange)
	assert.Nil(t, st.Feedback())
}

func TestFinalAnswerGate(t *testing.T) {
	judge := &scriptedJudge{scores: []eval.Feedback{
		{Accuracy: 5, Relevance: 5, Completeness: 3},
		{Accuracy: 5, Relevance: 5, Completeness: 4},
	}}
	tb := newTestToolbox(Deps{Judge: judge})
	st := session.New("q", 3)
	ctx := context.Background()

	// never judged
	res, err := tb.Dispatch(ctx, st, action.Action{Kind: action.KindFinalAnswer, Answer: "answer"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Contains(t, res.Observation, "judge_answer")
	assert.False(t, st.Done())
	assert.Equal(t, session.PhaseGathering, st.Phase())

	// judged below threshold
	_, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindJudgeAnswer, Answer: "answer"})
	require.NoError(t, err)
	res, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindFinalAnswer, Answer: "answer"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Contains(t, res.Observation, "completeness=3")
	assert.Contains(t, res.Observation, "completeness>=4")
	assert.False(t, st.Done())

	// passing judgement
	_, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindJudgeAnswer, Answer: "answer"})
	require.NoError(t, err)
	res, err = tb.Dispatch(ctx, st, action.Action{Kind: action.KindFinalAnswer, Answer: "answer"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, res.Outcome)
	assert.True(t, st.Done())
	assert.Equal(t, "answer", st.FinalAnswer())
}

func TestFinalAnswerFirstDraftPasses(t *testing.T) {
	judge := &scriptedJudge{scores: []eval.Feedback{{Accuracy: 4, Relevance: 4, Completeness: 4}}}
	tb := newTestToolbox(Deps{Judge: judge})
	st := session.New("q", 3)
	ctx := context.Background()

	_, err := tb.Dispatch(ctx, st, action.Action{Kind: action.KindJudgeAnswer, Answer: "first"})
	require.NoError(t, err)
	res, err := tb.Dispatch(ctx, st, action.Action{Kind: action.KindFinalAnswer, Answer: "first", Implicit: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, res.Outcome)
}

func TestDispatchUnknownKind(t *testing.T) {
	tb := newTestToolbox(Deps{})
	_, err := tb.Dispatch(context.Background(), session.New("q", 3), action.Action{Kind: "browse"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestMissingCollaborator(t *testing.T) {
	tb := newTestToolbox(Deps{})
	_, err := tb.Dispatch(context.Background(), session.New("q", 3), action.Action{Kind: action.KindVectorSearch, Query: "x"})
	assert.ErrorIs(t, err, ErrMissingCollaborator)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("a\n b\t\tc", 0))
	assert.Equal(t, "hello...", Snippet("hello world", 5))
	assert.Equal(t, "short", Snippet("short", 10))
	assert.Equal(t, "héllo...", Snippet("héllo wörld", 5))
}
