package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentx-labs/mcpx/internal/plan"
)

// MaxNetworkRetries is how many backoff delays a step gets before a network
// failure becomes final.
const MaxNetworkRetries = 3

// Schedule returns the delay before retry n (1-based).
type Schedule func(n int) time.Duration

// DefaultBackoff doubles from 500ms without jitter: 500ms, 1s, 2s.
func DefaultBackoff() Schedule {
	return ExponentialSchedule(500*time.Millisecond, 2)
}

// ExponentialSchedule returns initial × multiplier^(n-1) with no jitter.
func ExponentialSchedule(initial time.Duration, multiplier float64) Schedule {
	return func(n int) time.Duration {
		b := &backoff.ExponentialBackOff{
			InitialInterval:     initial,
			RandomizationFactor: 0,
			Multiplier:          multiplier,
			MaxInterval:         time.Hour,
		}
		b.Reset()
		var d time.Duration
		for i := 0; i < n; i++ {
			d = b.NextBackOff()
		}
		return d
	}
}

// networkBackoff waits through the host port and asks for a retry until
// MaxNetworkRetries delays have been used.
func networkBackoff(schedule Schedule) Strategy {
	return StrategyFunc(func(ctx context.Context, step plan.Step, env *Env) Result {
		if env.Failures > MaxNetworkRetries {
			return Result{Message: fmt.Sprintf("network still failing after %d retries", MaxNetworkRetries)}
		}
		d := schedule(env.Failures)
		if err := env.Host.Sleep(ctx, d); err != nil {
			return Result{Message: fmt.Sprintf("backoff interrupted: %v", err)}
		}
		return Result{
			Success: true,
			Retry:   true,
			Message: fmt.Sprintf("network error, retrying in %s (retry %d of %d)", d, env.Failures, MaxNetworkRetries),
		}
	})
}
