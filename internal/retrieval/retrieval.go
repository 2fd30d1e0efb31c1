package retrieval

import (
	"context"
	"fmt"
)

// #region retriever
// Searcher is a vector search backend that enforces a similarity threshold,
// such as the gRPC codec sidecar.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, threshold float32) ([]Result, error)
}

// Retriever runs sidecar vector search and filters the results.
type Retriever struct {
	searcher Searcher
	config   RetrievalConfig
}

// NewRetriever creates a Retriever with the given searcher and config.
func NewRetriever(searcher Searcher, config RetrievalConfig) *Retriever {
	return &Retriever{searcher: searcher, config: config}
}

// #endregion retriever

// #region search
// Search returns up to k passages for query:
//  1. similarity search with threshold (enforced by the searcher)
//  2. consistency check (non-empty, reasonable length, no dupes)
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Result, error) {
	results, err := r.searcher.Search(ctx, query, k, r.config.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("retrieval search: %w", err)
	}
	valid := r.consistencyCheck(results)
	if k > 0 && len(valid) > k {
		valid = valid[:k]
	}
	return valid, nil
}

// #endregion search

// #region consistency-check
// consistencyCheck drops results with empty content, content longer than
// MaxEvidenceLen, and repeated ids or contents.
func (r *Retriever) consistencyCheck(results []Result) []Result {
	seen := make(map[string]bool)
	var valid []Result

	for _, rec := range results {
		if rec.Content == "" {
			continue
		}
		if r.config.MaxEvidenceLen > 0 && len(rec.Content) > r.config.MaxEvidenceLen {
			continue
		}
		key := rec.Content
		if id, ok := rec.Metadata["id"].(string); ok && id != "" {
			key = "id:" + id
		}
		if seen[key] || seen["c:"+rec.Content] {
			continue
		}
		seen[key] = true
		seen["c:"+rec.Content] = true
		valid = append(valid, rec)
	}

	return valid
}

// #endregion consistency-check
