// Package recovery maps a classified step failure to a strategy that tries
// to satisfy the step's post-condition: switching package managers,
// relocating the install directory, accepting an existing clone, or backing
// off after network errors.
//
// The dispatch table has a cell for every (failure.Kind, plan.StepKind)
// pair. A nil cell means no strategy exists and the failure is final.
package recovery
