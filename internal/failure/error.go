package failure

import (
	"errors"
	"fmt"
)

// StepError is a classified failure of a single plan step.
type StepError struct {
	Kind     Kind
	Message  string
	ExitCode *int
	Err      error
}

func (e *StepError) Error() string {
	if e.ExitCode != nil {
		return fmt.Sprintf("%s (exit %d): %s", e.Kind, *e.ExitCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StepError) Unwrap() error { return e.Err }

// NewStepError classifies message/exitCode and wraps cause.
func NewStepError(message string, exitCode *int, cause error) *StepError {
	return &StepError{
		Kind:     Classify(message, exitCode),
		Message:  message,
		ExitCode: exitCode,
		Err:      cause,
	}
}

// FromError classifies a plain error. A StepError anywhere in the chain is
// returned as-is.
func FromError(err error) *StepError {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return NewStepError(err.Error(), nil, err)
}

// KindOf returns the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ClassifyError(err)
}

// ExitCode returns a pointer to code, for building StepErrors inline.
func ExitCode(code int) *int { return &code }
