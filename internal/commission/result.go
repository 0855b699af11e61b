package commission

import (
	"errors"
	"fmt"
)

// ErrPreconditionFailed marks a reporting step skipped because the binding
// for its cluster failed earlier in the same run.
var ErrPreconditionFailed = errors.New("commission: binding for cluster failed")

// Status is the outcome of one step.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Step     Step
	Endpoint uint8
	Status   Status
	Err      error
}

// Result is the outcome of a commissioning run, one entry per executed step
// in execution order.
type Result struct {
	Steps []StepResult
}

// Count returns the number of steps with the given status.
func (r *Result) Count(s Status) int {
	n := 0
	for _, sr := range r.Steps {
		if sr.Status == s {
			n++
		}
	}
	return n
}

// Err returns a *PartialFailureError when any step failed or was skipped.
func (r *Result) Err() error {
	var errs []error
	for _, sr := range r.Steps {
		if sr.Status != StatusSucceeded {
			errs = append(errs, fmt.Errorf("%s: %w", sr.Step, sr.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &PartialFailureError{
		Failed:  r.Count(StatusFailed),
		Skipped: r.Count(StatusSkipped),
		Total:   len(r.Steps),
		Err:     errors.Join(errs...),
	}
}

// PartialFailureError aggregates the failed and skipped steps of a run. The
// device stays paired with whatever succeeded.
type PartialFailureError struct {
	Failed  int
	Skipped int
	Total   int
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("commission: %d of %d steps failed, %d skipped: %v", e.Failed, e.Total, e.Skipped, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
