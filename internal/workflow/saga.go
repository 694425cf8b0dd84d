package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/janisto/citizen-profiles/internal/platform/retry"
)

// Saga custom statuses. A running step n reports STEP_n_RUNNING.
const (
	StatusPending   = "PENDING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// ErrInvalidInput marks a step input that can never succeed. A saga whose
// input builder returns it ends with a FAILURE outcome and is not retried.
var ErrInvalidInput = errors.New("invalid step input")

// ActivityFailureError reports a step that returned a FAILURE outcome.
// It fails the attempt, so the whole saga is retried.
type ActivityFailureError struct {
	Step     int
	Activity string
	Reason   string
}

func (e *ActivityFailureError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %s", e.Step, e.Activity, e.Reason)
}

// StepInput builds the input of a step from the saga input and the results
// of the steps that already ran.
type StepInput func(input Input, results []Outcome) (any, error)

// Step is one activity call of a saga.
type Step struct {
	Activity string
	Input    StepInput
}

// Saga runs Steps in order. Retry is used both for each activity and for
// restarting the saga after a failed step.
type Saga struct {
	Name  string
	Steps []Step
	Retry retry.Policy
}

// StepStatus is the custom status reported while step n (1-based) runs.
func StepStatus(n int) string {
	return fmt.Sprintf("STEP_%d_RUNNING", n)
}

// Orchestrator returns the orchestrator function for the saga.
func (s Saga) Orchestrator() Orchestrator {
	return func(ctx context.Context, oc *OrchestrationContext) (Outcome, error) {
		if err := oc.SetStatus(ctx, StatusPending); err != nil {
			return Outcome{}, err
		}

		results := make([]Outcome, 0, len(s.Steps))
		for i, step := range s.Steps {
			var in any
			if step.Input != nil {
				var err error
				in, err = step.Input(oc.RawInput(), results)
				if errors.Is(err, ErrInvalidInput) {
					if serr := oc.SetStatus(ctx, StatusFailed); serr != nil {
						return Outcome{}, serr
					}
					return Failure(err.Error()), nil
				}
				if err != nil {
					return Outcome{}, err
				}
			}

			if err := oc.SetStatus(ctx, StepStatus(i+1)); err != nil {
				return Outcome{}, err
			}
			out, err := oc.CallActivity(ctx, step.Activity, s.Retry, in)
			if err != nil {
				return Outcome{}, err
			}
			if !out.Succeeded() {
				return Outcome{}, &ActivityFailureError{Step: i + 1, Activity: step.Activity, Reason: out.Reason}
			}
			results = append(results, out)
		}

		if err := oc.SetStatus(ctx, StatusSucceeded); err != nil {
			return Outcome{}, err
		}
		if len(results) == 0 {
			return Success(nil)
		}
		return results[len(results)-1], nil
	}
}

// Register adds the saga orchestrator to h.
func (s Saga) Register(h *Host) {
	h.RegisterOrchestrator(s.Name, s.Orchestrator(), s.Retry)
}
