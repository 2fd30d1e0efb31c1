package tools

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/action"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/gate"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/metrics"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/session"
)

var toolsTracer trace.Tracer = otel.Tracer("agentic-rag/internal/tools")

// #region toolbox
// Toolbox dispatches parsed actions to their handlers. It holds no
// per-session state and may be shared by concurrent runs.
type Toolbox struct {
	deps    Deps
	gate    *gate.Gate
	limits  Limits
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Toolbox) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics records per-action counters and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Toolbox) { t.metrics = m }
}

// NewToolbox creates a Toolbox. A nil gate uses the default thresholds.
func NewToolbox(deps Deps, g *gate.Gate, limits Limits, opts ...Option) *Toolbox {
	if g == nil {
		g = gate.NewGate(gate.DefaultGateConfig())
	}
	tb := &Toolbox{
		deps:   deps,
		gate:   g,
		limits: limits,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(tb)
	}
	tb.logger = tb.logger.Named("tools")
	return tb
}

// Limits returns the configured limits.
func (t *Toolbox) Limits() Limits { return t.limits }

// Gate returns the final-answer gate.
func (t *Toolbox) Gate() *gate.Gate { return t.gate }

// #endregion toolbox

// #region dispatch
// Dispatch runs the handler for act against st. A returned error is a tool
// execution failure (collaborator error or timeout); gate rejections and
// invalid inputs are reported through Result.Outcome instead.
func (t *Toolbox) Dispatch(ctx context.Context, st *session.State, act action.Action) (Result, error) {
	ctx, span := toolsTracer.Start(ctx, "tools."+string(act.Kind))
	defer span.End()
	span.SetAttributes(attribute.String("action", string(act.Kind)))

	start := time.Now()
	var (
		res Result
		err error
	)
	switch act.Kind {
	case action.KindVectorSearch:
		res, err = t.vectorSearch(ctx, st, act)
	case action.KindTextSearch:
		res, err = t.textSearch(ctx, st, act)
	case action.KindRerank:
		res, err = t.rerank(ctx, st)
	case action.KindJudgeAnswer:
		res, err = t.judgeAnswer(ctx, st, act)
	case action.KindFinalAnswer:
		res, err = t.finalAnswer(st, act)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, act.Kind)
	}

	if err != nil {
		res.Outcome = OutcomeToolError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Warn("tool failed", zap.String("action", string(act.Kind)), zap.Error(err))
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	t.metrics.ObserveAction(string(act.Kind), string(res.Outcome), time.Since(start))
	return res, err
}

// #endregion dispatch
