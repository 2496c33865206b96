package executor

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("mcpx.executor")
	meter  = otel.Meter("mcpx.executor")
)

type instruments struct {
	once       sync.Once
	steps      metric.Int64Counter
	recoveries metric.Int64Counter
	duration   metric.Float64Histogram
}

// init creates the instruments. Failures degrade to no recording.
func (m *instruments) init(logger *slog.Logger) {
	m.once.Do(func() {
		var errs []string
		var err error

		m.steps, err = meter.Int64Counter("mcpx_step_outcomes_total",
			metric.WithDescription("Plan steps by terminal status"))
		if err != nil {
			errs = append(errs, "step_outcomes: "+err.Error())
		}
		m.recoveries, err = meter.Int64Counter("mcpx_recoveries_total",
			metric.WithDescription("Recovery attempts by error kind and result"))
		if err != nil {
			errs = append(errs, "recoveries: "+err.Error())
		}
		m.duration, err = meter.Float64Histogram("mcpx_step_duration_seconds",
			metric.WithDescription("Time spent on each plan step"),
			metric.WithUnit("s"))
		if err != nil {
			errs = append(errs, "step_duration: "+err.Error())
		}

		if len(errs) > 0 {
			logger.Error("failed to initialize executor metrics", slog.Any("errors", errs))
		}
	})
}

func (m *instruments) recordStep(ctx context.Context, o Outcome) {
	attrs := metric.WithAttributes(
		attribute.String("step.kind", string(o.Kind)),
		attribute.String("step.status", string(o.Status)),
	)
	if m.steps != nil {
		m.steps.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, o.FinishedAt.Sub(o.StartedAt).Seconds(), attrs)
	}
}

func (m *instruments) recordRecovery(ctx context.Context, kind string, success bool) {
	if m.recoveries == nil {
		return
	}
	m.recoveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.kind", kind),
		attribute.Bool("recovery.success", success),
	))
}
