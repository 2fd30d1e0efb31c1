package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
)

// Judge scores draft answers with a chat model.
type Judge struct {
	provider Provider
	opts     []Option
}

// NewJudge creates a Judge. Temperature defaults to 0.
func NewJudge(p Provider, opts ...Option) *Judge {
	return &Judge{
		provider: p,
		opts:     append([]Option{WithTemperature(0), WithJSON()}, opts...),
	}
}

// Score asks for JSON scores. Unparseable or out-of-range output is an error.
func (j *Judge) Score(ctx context.Context, question, answer, reference string) (eval.Feedback, error) {
	if strings.TrimSpace(reference) == "" {
		reference = "(no passages retrieved)"
	}
	out, err := j.provider.Generate(ctx, fmt.Sprintf(judgePrompt, question, reference, answer), j.opts...)
	if err != nil {
		return eval.Feedback{}, fmt.Errorf("judge: %w", err)
	}
	fb, err := ParseFeedback(out)
	if err != nil {
		return eval.Feedback{}, fmt.Errorf("judge: %w", err)
	}
	return fb, nil
}

// ParseFeedback reads {"accuracy", "relevance", "completeness", "feedback"}
// from model output, tolerating surrounding prose, fractional or quoted
// scores and a "comment" key in place of "feedback".
func ParseFeedback(text string) (eval.Feedback, error) {
	obj, err := extractObject(text)
	if err != nil {
		return eval.Feedback{}, err
	}
	var fb eval.Feedback
	for key, dst := range map[string]*int{
		"accuracy":     &fb.Accuracy,
		"relevance":    &fb.Relevance,
		"completeness": &fb.Completeness,
	} {
		n, ok := toInt(lookup(obj, key))
		if !ok {
			return eval.Feedback{}, fmt.Errorf("missing score %q", key)
		}
		*dst = n
	}
	for _, key := range []string{"feedback", "comment", "comments"} {
		if s, ok := lookup(obj, key).(string); ok {
			fb.Feedback = strings.TrimSpace(s)
			break
		}
	}
	if err := fb.Validate(); err != nil {
		return eval.Feedback{}, err
	}
	return fb, nil
}

// lookup is a case-insensitive key lookup.
func lookup(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
