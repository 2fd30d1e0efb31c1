package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

// Reranker orders passages with a chat model.
type Reranker struct {
	provider      Provider
	snippetLength int
	opts          []Option
}

// NewReranker creates a Reranker that shows the model at most snippetLength
// runes per passage (0 shows whole passages).
func NewReranker(p Provider, snippetLength int, opts ...Option) *Reranker {
	return &Reranker{
		provider:      p,
		snippetLength: snippetLength,
		opts:          append([]Option{WithTemperature(0)}, opts...),
	}
}

// Rerank returns a permutation of chunks. Passages the model leaves out keep
// their relative order after the ranked ones.
func (r *Reranker) Rerank(ctx context.Context, question string, chunks []session.Chunk) ([]session.Chunk, error) {
	if len(chunks) < 2 {
		return append([]session.Chunk(nil), chunks...), nil
	}

	var b strings.Builder
	for i, c := range chunks {
		text := c.Content
		if r.snippetLength > 0 {
			text = truncate(strings.Join(strings.Fields(text), " "), r.snippetLength)
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, text)
	}

	out, err := r.provider.Generate(ctx, fmt.Sprintf(rerankPrompt, question, strings.TrimRight(b.String(), "\n")), r.opts...)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	numbers, err := parseIndexArray(out)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	order := make([]int, len(numbers))
	for i, n := range numbers {
		order[i] = n - 1
	}
	return ApplyOrder(chunks, order), nil
}
