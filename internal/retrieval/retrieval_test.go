package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region fakes
type fakeSearcher struct {
	results   []Result
	err       error
	threshold float32
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ int, threshold float32) ([]Result, error) {
	f.threshold = threshold
	return f.results, f.err
}

// wordEmbedder maps text to counts over a fixed vocabulary.
type wordEmbedder struct {
	vocab []string
	calls int
}

func (w *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	w.calls++
	vec := make([]float32, len(w.vocab))
	for _, tok := range tokenize(text) {
		for i, v := range w.vocab {
			if tok == v {
				vec[i]++
			}
		}
	}
	return vec, nil
}

// #endregion fakes

// #region split
func TestSplitText_Short(t *testing.T) {
	assert.Equal(t, []string{"hello world"}, SplitText("  hello world \n", 100, 10))
	assert.Nil(t, SplitText("   ", 100, 10))
}

func TestSplitText_BreaksAtWhitespace(t *testing.T) {
	chunks := SplitText("aaaa bbbb cccc dddd", 10, 0)
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, chunks)
}

func TestSplitText_Overlap(t *testing.T) {
	text := strings.Repeat("word ", 60)
	chunks := SplitText(text, 50, 10)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 50)
	}
}

// #endregion split

// #region corpus
func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Product X costs 42 dollars."), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("# Notes\nProduct Y is red."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.jsonl"), []byte(
		`{"content":"first record","source":"doc-1","metadata":{"lang":"en"}}`+"\n\n"+
			`{"text":"second record"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.csv"), []byte("a,b"), 0o644))

	passages, err := LoadCorpus(dir, 500, 50)
	require.NoError(t, err)
	require.Len(t, passages, 4)

	bySource := map[string]Passage{}
	for _, p := range passages {
		bySource[p.Source] = p
	}
	assert.Equal(t, "Product X costs 42 dollars.", bySource["a.txt"].Content)
	assert.Contains(t, bySource[filepath.Join("sub", "b.md")].Content, "Product Y")
	assert.Equal(t, "en", bySource["doc-1"].Metadata["lang"])
	assert.Equal(t, "second record", bySource["c.jsonl#3"].Content)
}

func TestLoadCorpus_BadJSONL(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jsonl"), []byte("{not json\n"), 0o644))
	_, err := LoadCorpus(dir, 500, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jsonl:1")
}

// #endregion corpus

// #region text-index
func newTestIndex(t *testing.T) *TextIndex {
	t.Helper()
	idx, err := NewTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Add(
		Passage{Content: "Product X costs 42 dollars.", Source: "a"},
		Passage{Content: "Product Y is red.", Source: "b"},
		Passage{Content: "Product X was launched in 2020 after a long beta period.", Source: "a"},
		Passage{Content: "Shipping takes three days.", Source: "c"},
	))
	require.Equal(t, 4, idx.Len())
	return idx
}

func TestTextIndex_AndMode(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "product x", ModeAnd, 10)
	require.NoError(t, err)
	require.Len(t, res, 1, "one passage per source")
	assert.Equal(t, "Product X costs 42 dollars.", res[0].Content)
	assert.Equal(t, []string{"product", "x"}, res[0].Keywords)
	assert.Equal(t, 1.0, res[0].Score)
	assert.Equal(t, "a", res[0].Source())
	assert.Equal(t, "and", res[0].Metadata["mode"])
}

func TestTextIndex_AutoFallsBackToOr(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "product x price", ModeAuto, 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].Source())
	assert.Equal(t, []string{"product", "x"}, res[0].Keywords)
	assert.Equal(t, "b", res[1].Source())
	assert.Equal(t, []string{"product"}, res[1].Keywords)
	assert.Equal(t, "or", res[0].Metadata["mode"])
	assert.InDelta(t, 2.0/3.0, res[0].Score, 1e-9)
}

func TestTextIndex_AutoPrefersAnd(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "shipping days", ModeAuto, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "c", res[0].Source())
	assert.Equal(t, "and", res[0].Metadata["mode"])
}

func TestTextIndex_OrRespectsMax(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "product shipping", ModeOr, 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestTextIndex_NoKeywords(t *testing.T) {
	idx := newTestIndex(t)

	res, err := idx.Search(context.Background(), "what is the", ModeAuto, 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestTextIndex_UnknownMode(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Search(context.Background(), "product", Mode("fuzzy"), 10)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "AUTO": ModeAuto, "all": ModeAnd, " or ": ModeOr, "any": ModeOr} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("xor")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

// #endregion text-index

// #region retriever
func TestRetriever_ConsistencyCheck(t *testing.T) {
	fs := &fakeSearcher{results: []Result{
		{Content: "first", Metadata: map[string]any{"id": "1"}},
		{Content: ""},
		{Content: strings.Repeat("x", 50)},
		{Content: "first again", Metadata: map[string]any{"id": "1"}},
		{Content: "second"},
		{Content: "second"},
		{Content: "third"},
	}}
	r := NewRetriever(fs, RetrievalConfig{SimilarityThreshold: 0.4, MaxEvidenceLen: 20})

	res, err := r.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	var contents []string
	for _, x := range res {
		contents = append(contents, x.Content)
	}
	assert.Equal(t, []string{"first", "second", "third"}, contents)
	assert.Equal(t, float32(0.4), fs.threshold)

	res, err = r.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestRetriever_Error(t *testing.T) {
	r := NewRetriever(&fakeSearcher{err: errors.New("sidecar down")}, DefaultConfig())
	_, err := r.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sidecar down")
}

// #endregion retriever

// #region vectors
func TestMemoryIndex(t *testing.T) {
	emb := &wordEmbedder{vocab: []string{"apple", "banana", "cherry"}}
	idx := NewMemoryIndex(emb, 0.1)
	require.NoError(t, idx.Add(context.Background(),
		Passage{Content: "apple apple banana", Source: "fruit-1"},
		Passage{Content: "cherry", Source: "fruit-2"},
		Passage{Content: "banana", Source: "fruit-3"},
	))
	assert.Equal(t, 3, idx.Len())

	res, err := idx.Search(context.Background(), "apple", 2)
	require.NoError(t, err)
	require.Len(t, res, 1, "cherry and banana are orthogonal to apple")
	assert.Equal(t, "fruit-1", res[0].Source())

	res, err = idx.Search(context.Background(), "banana", 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "fruit-3", res[0].Source())
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Zero(t, cosine([]float32{1, 0}, []float32{0, 1}))
	assert.Zero(t, cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestCachedEmbedder(t *testing.T) {
	emb := &wordEmbedder{vocab: []string{"apple", "banana"}}
	c := NewCachedEmbedder(emb, NewMemoryCache(time.Minute), "test-model")

	v1, err := c.Embed(context.Background(), "apple")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "apple")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, emb.calls)

	_, err = c.Embed(context.Background(), "banana")
	require.NoError(t, err)
	assert.Equal(t, 2, emb.calls)
}

func TestMemoryCache_Miss(t *testing.T) {
	m := NewMemoryCache(time.Minute)
	_, ok, err := m.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}

// #endregion vectors
