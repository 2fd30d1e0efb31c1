package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/analysis/token/lowercase"
	"github.com/blevesearch/bleve/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/search/query"
)

const (
	contentField  = "content"
	plainAnalyzer = "plain"
)

// #region text-index
// TextIndex is an in-memory keyword index over passages. Search returns at
// most one passage per source, ranked by how many query keywords it covers.
type TextIndex struct {
	mu       sync.RWMutex
	index    bleve.Index
	passages []Passage
}

// NewTextIndex creates an empty in-memory index. Content is analyzed with a
// lowercasing unicode tokenizer and no stop-word filter, so indexed terms
// line up with the keywords Search extracts from the query.
func NewTextIndex() (*TextIndex, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(plainAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("text index mapping: %w", err)
	}
	m.DefaultAnalyzer = plainAnalyzer

	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("text index: %w", err)
	}
	return &TextIndex{index: idx}, nil
}

// Add indexes passages. Ids are assigned in insertion order.
func (t *TextIndex) Add(passages ...Passage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch := t.index.NewBatch()
	for _, p := range passages {
		id := strconv.Itoa(len(t.passages))
		t.passages = append(t.passages, p)
		if err := batch.Index(id, map[string]interface{}{
			contentField: p.Content,
			"source":     p.Source,
		}); err != nil {
			return fmt.Errorf("index passage %s: %w", id, err)
		}
	}
	if err := t.index.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	return nil
}

// Len returns the number of indexed passages.
func (t *TextIndex) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.passages)
}

// Close releases the underlying index.
func (t *TextIndex) Close() error {
	return t.index.Close()
}

// #endregion text-index

// #region text-search
// Search finds passages for the keywords in q. ModeAnd requires every keyword,
// ModeOr any of them, and ModeAuto tries AND and falls back to OR when AND
// finds nothing. Score is the fraction of keywords covered.
func (t *TextIndex) Search(ctx context.Context, q string, mode Mode, max int) ([]Result, error) {
	tokens := tokenize(q)
	if len(tokens) == 0 {
		return nil, nil
	}

	switch mode {
	case ModeAnd, ModeOr:
		return t.search(ctx, tokens, mode, max)
	case ModeAuto, "":
		results, err := t.search(ctx, tokens, ModeAnd, max)
		if err != nil || len(results) > 0 {
			return results, err
		}
		return t.search(ctx, tokens, ModeOr, max)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

type textHit struct {
	id       int
	passage  Passage
	keywords []string
}

func (t *TextIndex) search(ctx context.Context, tokens []string, mode Mode, max int) ([]Result, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.passages) == 0 {
		return nil, nil
	}

	clauses := make([]query.Query, 0, len(tokens))
	for _, tok := range tokens {
		mq := bleve.NewMatchQuery(tok)
		mq.SetField(contentField)
		clauses = append(clauses, mq)
	}
	var bq query.Query
	if mode == ModeAnd {
		bq = bleve.NewConjunctionQuery(clauses...)
	} else {
		bq = bleve.NewDisjunctionQuery(clauses...)
	}

	req := bleve.NewSearchRequestOptions(bq, len(t.passages), 0, false)
	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	hits := make([]textHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil || id < 0 || id >= len(t.passages) {
			continue
		}
		p := t.passages[id]
		kw := matchedKeywords(tokens, p.Content)
		if len(kw) == 0 || (mode == ModeAnd && len(kw) < len(tokens)) {
			continue
		}
		hits = append(hits, textHit{id: id, passage: p, keywords: kw})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if len(a.keywords) != len(b.keywords) {
			return len(a.keywords) > len(b.keywords)
		}
		if len(a.passage.Content) != len(b.passage.Content) {
			return len(a.passage.Content) < len(b.passage.Content)
		}
		return a.id < b.id
	})

	seen := make(map[string]bool)
	var results []Result
	for _, h := range hits {
		src := h.passage.Source
		if src == "" {
			src = "#" + strconv.Itoa(h.id)
		}
		if seen[src] {
			continue
		}
		seen[src] = true

		r := h.passage.result(float64(len(h.keywords))/float64(len(tokens)), h.keywords)
		r.Metadata["keywords"] = h.keywords
		r.Metadata["mode"] = string(mode)
		results = append(results, r)
		if max > 0 && len(results) >= max {
			break
		}
	}
	return results, nil
}

// #endregion text-search
