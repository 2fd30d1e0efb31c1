package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/metrics"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/tools"
)

var controllerTracer trace.Tracer = otel.Tracer("agentic-rag/internal/controller")

// #region controller
// Controller drives the decision loop for one question at a time per Run
// call. It keeps no per-question state, so concurrent Runs are independent.
type Controller struct {
	dm       DecisionMaker
	tools    *tools.Toolbox
	config   Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	recorder RunRecorder
	newID    func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records run, turn and error budget metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRecorder persists runs and turns.
func WithRecorder(r RunRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(f func() string) Option {
	return func(c *Controller) {
		if f != nil {
			c.newID = f
		}
	}
}

// New creates a Controller. Zero config fields take their defaults.
func New(dm DecisionMaker, tb *tools.Toolbox, cfg Config, opts ...Option) (*Controller, error) {
	if dm == nil {
		return nil, ErrNoDecisionMaker
	}
	if tb == nil {
		return nil, ErrNoToolbox
	}
	c := &Controller{
		dm:     dm,
		tools:  tb,
		config: withDefaults(cfg),
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("controller")
	return c, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = def.MaxTurns
	}
	if cfg.MaxErrorRetries <= 0 {
		cfg.MaxErrorRetries = def.MaxErrorRetries
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.InitialInterval <= 0 {
		cfg.Retry.InitialInterval = def.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval <= 0 {
		cfg.Retry.MaxInterval = def.Retry.MaxInterval
	}
	return cfg
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.config }

// #endregion controller

// #region run
// Run answers one question. Budget exhaustion is not an error: the result
// carries the status and the best available answer. An error is returned only
// when every outer attempt failed or ctx was cancelled; the result then holds
// whatever the last attempt produced.
func (c *Controller) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, ErrEmptyQuestion
	}

	runID := c.newID()
	ctx, span := controllerTracer.Start(ctx, "controller.run", trace.WithAttributes(
		attribute.String("run.id", runID),
	))
	defer span.End()

	start := time.Now()
	log := c.logger.With(zap.String("run_id", runID))
	log.Info("run started", zap.String("question", req.Question), zap.Int("history", len(req.History)))
	if c.recorder != nil {
		if err := c.recorder.StartRun(ctx, runID, req.Question, start); err != nil {
			log.Warn("record run start", zap.Error(err))
		}
	}

	var (
		res     Result
		attempt int
	)
	op := func() error {
		attempt++
		r, err := c.attempt(ctx, runID, attempt, req)
		res = r
		return classify(ctx, err)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("run attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	err := backoff.RetryNotify(op, newBackOff(ctx, c.config.Retry), notify)
	if err == nil && ctx.Err() != nil {
		// backoff gave up on a cancelled context before the next attempt
		err = ctx.Err()
	}

	res.RunID = runID
	res.Attempts = attempt
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.String("run.status", string(res.Status)),
		attribute.Int("run.turns", res.Turns),
		attribute.Int("run.attempts", attempt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("run failed", zap.Int("attempts", attempt), zap.Error(err))
	} else {
		span.SetStatus(codes.Ok, string(res.Status))
		log.Info("run finished",
			zap.String("status", string(res.Status)),
			zap.Int("turns", res.Turns),
			zap.Int("attempts", attempt),
			zap.Duration("elapsed", elapsed))
	}
	c.metrics.ObserveRun(string(res.Status), res.Turns, elapsed)
	c.finishRun(ctx, log, req, res, err, start)
	return res, err
}

func (c *Controller) finishRun(ctx context.Context, log *zap.Logger, req Request, res Result, runErr error, start time.Time) {
	if c.recorder == nil {
		return
	}
	sum := logging.RunSummary{
		RunID:        res.RunID,
		Question:     req.Question,
		Status:       string(res.Status),
		Answer:       res.Answer,
		Turns:        res.Turns,
		ErrorRetries: res.ErrorRetries,
		Attempts:     res.Attempts,
		StartedAt:    start,
		FinishedAt:   time.Now(),
	}
	if sum.Status == "" {
		sum.Status = "failed"
	}
	if runErr != nil {
		sum.Error = runErr.Error()
	}
	if res.Feedback != nil {
		if b, err := json.Marshal(res.Feedback); err == nil {
			sum.FeedbackJSON = string(b)
		}
	}
	// the run's ctx may already be cancelled; provenance is still written
	if err := c.recorder.FinishRun(context.WithoutCancel(ctx), sum); err != nil {
		log.Warn("record run finish", zap.Error(err))
	}
}

// attempt runs the loop once, converting a collaborator panic into an error.
func (c *Controller) attempt(ctx context.Context, runID string, n int, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCollaboratorPanic, r)
		}
	}()
	return c.loop(ctx, runID, n, req)
}

// #endregion run
