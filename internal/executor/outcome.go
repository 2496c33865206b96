package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/plan"
)

// Status is the terminal state of a step.
type Status string

const (
	// StatusSucceeded means the step's post-condition holds: its action
	// succeeded, possibly after retries, or a recovery strategy satisfied it
	// directly. ErrorKind and Message are set in the latter case.
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	// StatusSkipped means a guarded install step did not match the
	// detected server type.
	StatusSkipped Status = "Skipped"
)

// Outcome records how one step ended. It is appended to the outcome log
// once the step is final and never changed afterwards.
type Outcome struct {
	StepID     string        `json:"stepId"`
	Kind       plan.StepKind `json:"kind"`
	Status     Status        `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Attempts   int           `json:"attempts"`
	ErrorKind  failure.Kind  `json:"errorKind,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// ErrCanceled is wrapped by the AbortError returned when the context is
// canceled.
var ErrCanceled = errors.New("installation canceled")

// AbortError is the terminal failure of a run.
type AbortError struct {
	StepID  string
	Kind    failure.Kind
	Message string
	// Outcomes is the outcome log; its last entry is the failed step.
	Outcomes []Outcome
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("step %s failed (%s): %s", e.StepID, e.Kind, e.Message)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Result is the outcome of a completed run.
type Result struct {
	Outcomes []Outcome
	// ServerType is what a DetectServerType step found, if one ran.
	ServerType plan.ServerType
	// InstallPath is the plan's install path after any relocation.
	InstallPath string
}

// Outcome returns the outcome of the step with the given id.
func (r *Result) Outcome(id string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.StepID == id {
			return o, true
		}
	}
	return Outcome{}, false
}
