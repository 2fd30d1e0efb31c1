package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/eval"
)

// ErrEmptyResponse is returned when the model replies with nothing.
var ErrEmptyResponse = errors.New("llm: empty response")

// DecisionMaker proposes ReAct steps with a chat model.
type DecisionMaker struct {
	provider Provider
	system   string
	opts     []Option
}

var _ controller.DecisionMaker = (*DecisionMaker)(nil)

// NewDecisionMaker creates a DecisionMaker whose prompt quotes thresholds.
func NewDecisionMaker(p Provider, thresholds eval.Thresholds, opts ...Option) *DecisionMaker {
	return &DecisionMaker{
		provider: p,
		system:   DecisionSystemPrompt(thresholds.String()),
		opts:     opts,
	}
}

// Propose sends the system prompt, the earlier exchanges and the turn message.
func (d *DecisionMaker) Propose(ctx context.Context, p controller.Proposal) (string, error) {
	msgs := make([]Message, 0, 2+2*len(p.History))
	msgs = append(msgs, Message{Role: "system", Content: d.system})
	for _, ex := range p.History {
		msgs = append(msgs,
			Message{Role: "user", Content: ex.Question},
			Message{Role: "assistant", Content: ex.Answer})
	}
	msgs = append(msgs, Message{Role: "user", Content: RenderTurn(p)})

	out, err := d.provider.Chat(ctx, msgs, d.opts...)
	if err != nil {
		return "", fmt.Errorf("decision: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
