package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentx-labs/mcpx/internal/events"
	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/plan"
	"github.com/agentx-labs/mcpx/internal/recovery"
)

// MaxAttempts is how many times a step may enter Running.
const MaxAttempts = 4

// DefaultPacing is the pause between successful steps.
const DefaultPacing = 500 * time.Millisecond

// Timeouts bound the host calls of a step.
type Timeouts struct {
	// Command applies to clones, dependency installs and docker commands.
	Command time.Duration
	// Config applies to configuration writes.
	Config time.Duration
}

// DefaultTimeouts returns 10 minutes for commands and 2 for config writes.
func DefaultTimeouts() Timeouts {
	return Timeouts{Command: 10 * time.Minute, Config: 2 * time.Minute}
}

// Executor runs plans. It holds no per-run state and may be reused.
type Executor struct {
	host     host.Services
	recovery *recovery.Engine
	bus      *events.Bus
	logger   *slog.Logger
	pacing   time.Duration
	timeouts Timeouts
	now      func() time.Time
	metrics  instruments
}

// Option configures an Executor.
type Option func(*Executor)

// WithBus sets the bus events are emitted on.
func WithBus(b *events.Bus) Option {
	return func(e *Executor) { e.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithRecovery replaces the default recovery engine.
func WithRecovery(r *recovery.Engine) Option {
	return func(e *Executor) { e.recovery = r }
}

// WithPacing sets the pause between successful steps. Zero disables it.
func WithPacing(d time.Duration) Option {
	return func(e *Executor) { e.pacing = d }
}

// WithTimeouts sets per-step timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(e *Executor) { e.timeouts = t }
}

// WithClock sets the clock outcome timestamps are taken from.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New returns an Executor that performs every effect through svc.
func New(svc host.Services, opts ...Option) *Executor {
	e := &Executor{
		host:     svc,
		logger:   slog.Default(),
		pacing:   DefaultPacing,
		timeouts: DefaultTimeouts(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recovery == nil {
		e.recovery = recovery.NewEngine(recovery.WithLogger(e.logger))
	}
	e.metrics.init(e.logger)
	return e
}

// run is the state of one Execute call.
type run struct {
	id         string
	plan       *plan.Plan
	outcomes   []Outcome
	serverType plan.ServerType
}

// Execute runs p to completion. Recovery strategies may modify p, for
// example by relocating its install path. A non-nil error is always an
// *AbortError.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) (*Result, error) {
	r := &run{id: uuid.NewString(), plan: p}
	logger := e.logger.With("run", r.id, "server", p.Name)

	ctx, span := tracer.Start(ctx, "executor.Execute",
		trace.WithAttributes(
			attribute.String("mcpx.run_id", r.id),
			attribute.String("mcpx.server", p.Name),
			attribute.String("mcpx.method", string(p.Method)),
			attribute.Int("mcpx.step_count", len(p.Steps)),
		),
	)
	defer span.End()

	total := len(p.Steps)
	for i, step := range p.Steps {
		out, err := e.executeStep(ctx, r, step, logger)
		r.outcomes = append(r.outcomes, out)
		if err != nil {
			err.Outcomes = append([]Outcome(nil), r.outcomes...)
			e.bus.Emit(events.Progress{
				CompletedStepCount:     i,
				TotalStepCount:         total,
				CurrentStepDescription: step.Common().Description,
				Phase:                  events.PhaseFailed,
				Detail:                 detailFor(err),
			})
			e.bus.Emit(events.Failed{StepID: err.StepID, Kind: err.Kind, Message: err.Message})
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		phase := events.PhaseRunning
		if i == total-1 {
			phase = events.PhaseDone
		}
		e.bus.Emit(events.Progress{
			CompletedStepCount:     i + 1,
			TotalStepCount:         total,
			CurrentStepDescription: step.Common().Description,
			Phase:                  phase,
		})

		if i < total-1 && e.pacing > 0 {
			// Cancellation during the pause is picked up at the next step.
			_ = e.host.Sleep(ctx, e.pacing)
		}
	}

	span.SetStatus(codes.Ok, "")
	return &Result{
		Outcomes:    r.outcomes,
		ServerType:  r.serverType,
		InstallPath: p.InstallPath,
	}, nil
}

func detailFor(err *AbortError) string {
	if err.Kind == failure.Canceled {
		return events.DetailCanceled
	}
	return ""
}

// executeStep drives one step through its state machine.
func (e *Executor) executeStep(ctx context.Context, r *run, step plan.Step, logger *slog.Logger) (Outcome, *AbortError) {
	base := step.Common()
	out := Outcome{StepID: base.ID, Kind: step.Kind(), StartedAt: e.now()}
	logger = logger.With("step", base.ID)

	ctx, span := tracer.Start(ctx, "executor.step",
		trace.WithAttributes(
			attribute.String("mcpx.step_id", base.ID),
			attribute.String("mcpx.step_kind", string(step.Kind())),
		),
	)
	defer span.End()

	finish := func(status Status) Outcome {
		out.Status = status
		out.FinishedAt = e.now()
		e.metrics.recordStep(ctx, out)
		span.SetAttributes(
			attribute.String("mcpx.step_status", string(status)),
			attribute.Int("mcpx.attempts", out.Attempts),
		)
		return out
	}
	abort := func(kind failure.Kind, msg string, cause error) (Outcome, *AbortError) {
		out.ErrorKind = kind
		out.Message = msg
		e.bus.Logf(events.LevelError, base.ID, fmt.Sprintf("%s failed: %s", base.Description, msg))
		span.SetStatus(codes.Error, msg)
		return finish(StatusFailed), &AbortError{StepID: base.ID, Kind: kind, Message: msg, Err: cause}
	}
	canceled := func() (Outcome, *AbortError) {
		logger.Info("installation canceled", "attempts", out.Attempts)
		return abort(failure.Canceled, "installation canceled", errors.Join(ErrCanceled, context.Cause(ctx)))
	}

	if guard := plan.Guard(step); guard != "" && guard != r.serverType {
		out.Message = fmt.Sprintf("server type is %s, not %s", displayType(r.serverType), guard)
		e.bus.Logf(events.LevelInfo, base.ID, "Skipping "+base.Description+": "+out.Message)
		return finish(StatusSkipped), nil
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return canceled()
		}
		out.Attempts++
		if out.Attempts == 1 {
			e.bus.Logf(events.LevelInfo, base.ID, base.Description)
		}
		logger.Debug("running step", "attempt", out.Attempts)

		msg, err := e.runStep(ctx, r, step)
		if err == nil {
			out.Message = msg
			e.bus.Logf(events.LevelSuccess, base.ID, successMessage(base.Description, msg))
			return finish(StatusSucceeded), nil
		}

		se := failure.FromError(err)
		failures++
		out.ErrorKind = se.Kind
		logger.Warn("step failed", "kind", se.Kind, "attempt", out.Attempts, "error", se.Message)

		res := e.recovery.Recover(ctx, se.Kind, step, &recovery.Env{
			Host:     e.host,
			Plan:     r.plan,
			Failures: failures,
		})
		e.metrics.recordRecovery(ctx, string(se.Kind), res.Success)
		if ctx.Err() != nil {
			return canceled()
		}
		if !res.Success {
			logger.Info("recovery unavailable", "kind", se.Kind, "reason", res.Message)
			return abort(se.Kind, se.Message, se)
		}
		e.bus.Logf(events.LevelWarn, base.ID, fmt.Sprintf("%s: %s", base.Description, res.Message))

		if !res.Retry {
			// The post-condition holds without rerunning the action.
			out.Message = res.Message
			return finish(StatusSucceeded), nil
		}
		if out.Attempts >= MaxAttempts {
			return abort(se.Kind,
				fmt.Sprintf("%s (gave up after %d attempts)", se.Message, out.Attempts), se)
		}
	}
}

func successMessage(desc, detail string) string {
	if detail == "" {
		return desc + " done"
	}
	return desc + ": " + detail
}

func displayType(t plan.ServerType) string {
	if t == "" {
		return "undetected"
	}
	return string(t)
}
