package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// #region memory-index
// MemoryIndex is an in-process vector index for small corpora and tests.
type MemoryIndex struct {
	embedder  Embedder
	threshold float32

	mu      sync.RWMutex
	entries []memoryEntry
}

type memoryEntry struct {
	passage Passage
	vec     []float32
}

// NewMemoryIndex creates an index that drops hits below threshold cosine similarity.
func NewMemoryIndex(e Embedder, threshold float32) *MemoryIndex {
	return &MemoryIndex{embedder: e, threshold: threshold}
}

// Add embeds and stores passages.
func (m *MemoryIndex) Add(ctx context.Context, passages ...Passage) error {
	entries := make([]memoryEntry, 0, len(passages))
	for i, p := range passages {
		vec, err := m.embedder.Embed(ctx, p.Content)
		if err != nil {
			return fmt.Errorf("embed passage %d: %w", i, err)
		}
		entries = append(entries, memoryEntry{passage: p, vec: vec})
	}
	m.mu.Lock()
	m.entries = append(m.entries, entries...)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored passages.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Search returns the k passages most similar to query, best first.
func (m *MemoryIndex) Search(ctx context.Context, query string, k int) ([]Result, error) {
	qv, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, e := range m.entries {
		s := cosine(qv, e.vec)
		if s < float64(m.threshold) {
			continue
		}
		hits = append(hits, scored{idx: i, score: s})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, m.entries[h.idx].passage.result(h.score, nil))
	}
	return results, nil
}

// #endregion memory-index

// cosine returns the cosine similarity of a and b, or 0 when either is zero
// or their lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
