package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/host"
	"github.com/agentx-labs/mcpx/internal/plan"
)

// Result is the outcome of a recovery attempt. Success with Retry re-runs
// the step; Success without Retry means the strategy itself satisfied the
// step; no Success means the failure stands.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

// Env is what a strategy may use and modify. Plan is the in-flight plan;
// strategies that relocate it must patch later steps as well.
type Env struct {
	Host host.Services
	Plan *plan.Plan
	// Failures is how many times the step has failed so far, including the
	// failure being recovered.
	Failures int
}

// Strategy attempts to recover one failed step.
type Strategy interface {
	Recover(ctx context.Context, step plan.Step, env *Env) Result
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, step plan.Step, env *Env) Result

// Recover calls f.
func (f StrategyFunc) Recover(ctx context.Context, step plan.Step, env *Env) Result {
	return f(ctx, step, env)
}

// Table is the (kind, step kind) → strategy dispatch table.
type Table map[failure.Kind]map[plan.StepKind]Strategy

// Engine looks up and runs strategies.
type Engine struct {
	table  Table
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTable replaces the default table.
func WithTable(t Table) Option {
	return func(e *Engine) { e.table = t }
}

// NewEngine returns an Engine using DefaultTable.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.table == nil {
		e.table = DefaultTable(DefaultBackoff())
	}
	return e
}

// Lookup returns the strategy for (kind, step), or nil.
func (e *Engine) Lookup(kind failure.Kind, step plan.StepKind) Strategy {
	return e.table[kind][step]
}

// Recover runs the strategy for (kind, step kind). Missing strategies and
// panicking strategies both yield {Success: false, Retry: false}.
func (e *Engine) Recover(ctx context.Context, kind failure.Kind, step plan.Step, env *Env) (res Result) {
	s := e.Lookup(kind, step.Kind())
	if s == nil {
		return Result{Message: fmt.Sprintf("no recovery for %s during %s", kind, step.Kind())}
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("recovery strategy panicked", "kind", kind, "step", step.Common().ID, "panic", r)
			res = Result{Message: fmt.Sprintf("recovery for %s failed: %v", kind, r)}
		}
	}()

	res = s.Recover(ctx, step, env)
	if !res.Success {
		res.Retry = false
	}
	e.logger.Debug("recovery attempted",
		"kind", kind,
		"step", step.Common().ID,
		"success", res.Success,
		"retry", res.Retry,
		"message", res.Message)
	return res
}

// DefaultTable returns the built-in strategies. Network failures of any step
// are retried on the schedule produced by backoff.
func DefaultTable(backoff Schedule) Table {
	retryNetwork := networkBackoff(backoff)
	return Table{
		failure.Missing: {
			plan.KindPrepareDirectory: nil,
			plan.KindClone:            nil,
			plan.KindNpmInstall:       StrategyFunc(alternativeNodeManager),
			plan.KindPipInstall:       StrategyFunc(alternativePythonInstaller),
			plan.KindDockerBuild:      nil,
			plan.KindDockerRun:        nil,
			plan.KindWriteConfig:      StrategyFunc(createConfigDir),
			plan.KindDetectServerType: nil,
			plan.KindVerify:           nil,
		},
		failure.Permission: {
			plan.KindPrepareDirectory: StrategyFunc(relocateToUserDir),
			plan.KindClone:            nil,
			plan.KindNpmInstall:       StrategyFunc(userNpmCache),
			plan.KindPipInstall:       nil,
			plan.KindDockerBuild:      nil,
			plan.KindDockerRun:        nil,
			plan.KindWriteConfig:      nil,
			plan.KindDetectServerType: nil,
			plan.KindVerify:           nil,
		},
		failure.Exists: {
			plan.KindPrepareDirectory: StrategyFunc(directoryExists),
			plan.KindClone:            StrategyFunc(matchingClone),
			plan.KindNpmInstall:       nil,
			plan.KindPipInstall:       nil,
			plan.KindDockerBuild:      nil,
			plan.KindDockerRun:        StrategyFunc(replaceContainer),
			plan.KindWriteConfig:      nil,
			plan.KindDetectServerType: nil,
			plan.KindVerify:           nil,
		},
		failure.Network: {
			plan.KindPrepareDirectory: retryNetwork,
			plan.KindClone:            retryNetwork,
			plan.KindNpmInstall:       retryNetwork,
			plan.KindPipInstall:       retryNetwork,
			plan.KindDockerBuild:      retryNetwork,
			plan.KindDockerRun:        retryNetwork,
			plan.KindWriteConfig:      retryNetwork,
			plan.KindDetectServerType: retryNetwork,
			plan.KindVerify:           retryNetwork,
		},
		failure.Disk: {
			plan.KindPrepareDirectory: nil,
			plan.KindClone:            nil,
			plan.KindNpmInstall:       StrategyFunc(cleanNpmCache),
			plan.KindPipInstall:       nil,
			plan.KindDockerBuild:      nil,
			plan.KindDockerRun:        nil,
			plan.KindWriteConfig:      nil,
			plan.KindDetectServerType: nil,
			plan.KindVerify:           nil,
		},
		failure.Unknown: {
			plan.KindPrepareDirectory: nil,
			plan.KindClone:            nil,
			plan.KindNpmInstall:       nil,
			plan.KindPipInstall:       nil,
			plan.KindDockerBuild:      nil,
			plan.KindDockerRun:        nil,
			plan.KindWriteConfig:      nil,
			plan.KindDetectServerType: nil,
			plan.KindVerify:           nil,
		},
	}
}

// probeTimeout bounds the short commands strategies run.
const probeTimeout = 30 * time.Second
