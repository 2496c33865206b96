// Package executor runs a plan one step at a time through the host port.
//
// Each step moves Pending → Running → Succeeded, or on failure through
// classification and the recovery engine, which either retries the step,
// satisfies it directly, or aborts the run. Progress and log events are
// emitted on an events.Bus in step order; the outcome log records every
// step that reached a non-aborted terminal state.
//
// Cancellation is honoured between steps and before retries, never in the
// middle of a running command.
package executor
