package retrieval

import (
	"errors"
	"fmt"
	"strings"
)

// #region config
// RetrievalConfig holds limits for sidecar-backed vector search.
type RetrievalConfig struct {
	SimilarityThreshold float32 // min cosine similarity, enforced by the sidecar
	MaxEvidenceLen      int     // max chars per passage; longer results are dropped
}

// DefaultConfig returns sensible defaults for sidecar retrieval.
func DefaultConfig() RetrievalConfig {
	return RetrievalConfig{
		SimilarityThreshold: 0.3,
		MaxEvidenceLen:      4000,
	}
}

// #endregion config

// #region result
// Result is one retrieved passage, most relevant first within a result list.
type Result struct {
	Content  string
	Metadata map[string]any
	Score    float64
	Keywords []string // matched query tokens (text search only)
}

// Source returns the "source" metadata value, or "" when absent.
func (r Result) Source() string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata["source"].(string)
	return s
}

// #endregion result

// #region mode
// Mode selects how text search combines query tokens.
type Mode string

const (
	ModeAnd  Mode = "and"
	ModeOr   Mode = "or"
	ModeAuto Mode = "auto" // AND first, OR when AND finds nothing
)

var ErrUnknownMode = errors.New("unknown text search mode")

// ParseMode maps user text to a Mode. Empty input is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "and", "all":
		return ModeAnd, nil
	case "or", "any":
		return ModeOr, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// #endregion mode
