package events

import (
	"github.com/agentx-labs/mcpx/internal/failure"
	"github.com/agentx-labs/mcpx/internal/registry"
)

// Event is one of Progress, Log, Installed or Failed.
type Event interface {
	Name() string
}

// Phase of a progress report.
type Phase string

const (
	PhaseRunning Phase = "running"
	PhaseDone    Phase = "done"
	PhaseFailed  Phase = "failed"
)

// DetailCanceled marks a failed progress report caused by cancellation.
const DetailCanceled = "canceled"

// Progress is emitted after each step reaches a terminal state.
type Progress struct {
	CompletedStepCount     int    `json:"completedStepCount"`
	TotalStepCount         int    `json:"totalStepCount"`
	CurrentStepDescription string `json:"currentStepDescription"`
	Phase                  Phase  `json:"phase"`
	Detail                 string `json:"detail,omitempty"`
}

func (Progress) Name() string { return "progress" }

// Level of a log event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Log is a human-readable message, optionally tied to a step.
type Log struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	StepID  string `json:"stepId,omitempty"`
}

func (Log) Name() string { return "log" }

// Installed is emitted once the host config and registry are committed.
type Installed struct {
	Entry registry.ServerEntry `json:"entry"`
}

func (Installed) Name() string { return "installed" }

// Failed is emitted when an installation stops. Kind is always set.
type Failed struct {
	StepID  string       `json:"stepId"`
	Kind    failure.Kind `json:"errorKind"`
	Message string       `json:"message"`
}

func (Failed) Name() string { return "failed" }
