package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/action"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/tools"
)

// #region outcomes
// turn outcomes written to the turn log
const (
	outcomeParseError    = "parse_error"
	outcomeDecisionError = "decision_error"
)

// #endregion outcomes

// #region loop
// loop runs turns until the session is done or a budget is spent. Decision
// maker failures cost error budget but no turn; parse errors, invalid inputs
// and tool failures cost both; any successful dispatch clears the error
// budget. Gate rejections are ordinary turns.
func (c *Controller) loop(ctx context.Context, runID string, attempt int, req Request) (Result, error) {
	st := session.New(req.Question, c.tools.Limits().FinalK)
	log := c.logger.With(zap.String("run_id", runID), zap.Int("attempt", attempt))

	var (
		turns, errorRetries, proposals int
		status                         = StatusTurnBudgetExhausted
	)
	result := func() Result {
		return Result{
			Status:       status,
			Answer:       st.BestAnswer(),
			Turns:        turns,
			ErrorRetries: errorRetries,
			Context:      st.ContextChunks(),
			Transcript:   st.Transcript(),
			Batches:      st.Batches(),
			Feedback:     st.Feedback(),
		}
	}

	for turns < c.config.MaxTurns {
		if err := ctx.Err(); err != nil {
			return result(), err
		}
		if errorRetries >= c.config.MaxErrorRetries {
			status = StatusErrorBudgetExhausted
			log.Warn("error budget exhausted", zap.Int("turns", turns), zap.Int("error_retries", errorRetries))
			if proposals == 0 {
				return result(), ErrDecisionMakerUnavailable
			}
			return result(), nil
		}

		raw, err := c.propose(ctx, st, req, turns+1)
		if err != nil {
			if ctx.Err() != nil {
				return result(), ctx.Err()
			}
			errorRetries++
			c.metrics.ErrorBudget("decision")
			log.Warn("decision maker failed", zap.Int("turn", turns+1), zap.Int("error_retries", errorRetries), zap.Error(err))
			c.recordTurn(ctx, log, logging.TurnEntry{
				RunID: runID, Attempt: attempt, Turn: turns + 1,
				Action: "none", Observation: err.Error(),
				Outcome: outcomeDecisionError, ErrorRetries: errorRetries,
			})
			continue
		}
		proposals++
		turns++

		step, outcome, err := c.turn(ctx, st, raw, turns)
		if err != nil {
			return result(), err
		}
		if outcome == string(tools.OutcomeOK) || outcome == string(tools.OutcomeRejected) || outcome == string(tools.OutcomeFinalized) {
			errorRetries = 0
		} else {
			errorRetries++
			c.metrics.ErrorBudget(outcome)
		}

		st.AppendStep(step)
		log.Debug("turn",
			zap.Int("turn", turns),
			zap.String("action", step.Action),
			zap.String("outcome", outcome),
			zap.Int("error_retries", errorRetries))
		c.recordTurn(ctx, log, logging.TurnEntry{
			RunID: runID, Attempt: attempt, Turn: turns,
			Thought: step.Thought, Action: step.Action, Input: step.Input, Observation: step.Observation,
			Outcome: outcome, ErrorRetries: errorRetries,
		})

		if st.Done() {
			status = StatusSucceeded
			return result(), nil
		}
	}

	if errorRetries >= c.config.MaxErrorRetries {
		status = StatusErrorBudgetExhausted
	}
	log.Warn("turn budget exhausted", zap.Int("turns", turns), zap.Int("error_retries", errorRetries))
	return result(), nil
}

// #endregion loop

// #region turn
// turn parses and dispatches one proposal. The returned error is reserved for
// cancellation of the run itself; everything else becomes an observation.
func (c *Controller) turn(ctx context.Context, st *session.State, raw string, n int) (session.Step, string, error) {
	ctx, span := controllerTracer.Start(ctx, "controller.turn", trace.WithAttributes(attribute.Int("turn", n)))
	defer span.End()

	act := action.Parse(raw)
	step := session.Step{Thought: act.Thought, Action: string(act.Kind), Input: act.Input}
	span.SetAttributes(attribute.String("action", step.Action))

	if act.IsError() {
		step.Observation = correction(act.Err)
		return step, outcomeParseError, nil
	}
	if act.Implicit {
		step.Input = act.Answer
	}

	callCtx, cancel := withCallTimeout(ctx, c.config.CallTimeout)
	res, err := c.tools.Dispatch(callCtx, st, act)
	cancel()

	switch {
	case err != nil && ctx.Err() != nil:
		return step, string(tools.OutcomeToolError), ctx.Err()
	case errors.Is(err, tools.ErrUnknownAction):
		step.Observation = fmt.Sprintf("Unknown action %q. Use one of: %s.", act.Kind, kindList())
		return step, string(tools.OutcomeToolError), nil
	case errors.Is(err, context.DeadlineExceeded):
		step.Observation = fmt.Sprintf("Error: %s timed out after %s. Try again or choose a different action.", act.Kind, c.config.CallTimeout)
		return step, string(tools.OutcomeToolError), nil
	case err != nil:
		step.Observation = fmt.Sprintf("Error: %s failed: %v. Try again or choose a different action.", act.Kind, err)
		return step, string(tools.OutcomeToolError), nil
	}
	step.Observation = res.Observation
	return step, string(res.Outcome), nil
}

// correction is the observation for unparseable output.
func correction(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Could not parse your response (%v). Reply in exactly this format:\n", err)
	b.WriteString("Thought: <your reasoning>\n")
	fmt.Fprintf(&b, "Action: <one of %s>\n", kindList())
	b.WriteString(`Action Input: <JSON object, e.g. {"query": "..."} or {"answer": "..."}>`)
	return b.String()
}

func kindList() string {
	kinds := action.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// #endregion turn

// #region propose
func (c *Controller) propose(ctx context.Context, st *session.State, req Request, turn int) (string, error) {
	ctx, span := controllerTracer.Start(ctx, "controller.propose")
	defer span.End()

	callCtx, cancel := withCallTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	raw, err := c.dm.Propose(callCtx, Proposal{
		Question:   req.Question,
		History:    req.History,
		Context:    st.FormatContext(),
		Transcript: st.FormatTranscript(),
		TurnMarker: fmt.Sprintf("Turn %d of %d", turn, c.config.MaxTurns),
		Turn:       turn,
		MaxTurns:   c.config.MaxTurns,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("propose: %w", err)
	}
	return raw, nil
}

// #endregion propose

// #region record
func (c *Controller) recordTurn(ctx context.Context, log *zap.Logger, entry logging.TurnEntry) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordTurn(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("record turn", zap.Int("turn", entry.Turn), zap.Error(err))
	}
}

// #endregion record
