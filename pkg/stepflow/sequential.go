package stepflow

import (
	"context"

	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
)

// IterationFactor times the step count is the sequential iteration cap.
const IterationFactor = 10

// runSequential walks steps from the first, following the first OnSuccess
// or OnFailure target after each invoked step and falling through to the
// next step otherwise. A step whose condition is false is passed over
// without a result; one whose condition fails to evaluate records a failed
// result and is passed over.
func (r *run) runSequential(ctx context.Context, steps []Step) error {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.ID] = i
	}

	limit := IterationFactor * len(steps)
	iterations := 0
	cursor := 0

	for cursor < len(steps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := steps[cursor]

		iterations++
		if iterations > limit {
			return &MaxIterationsError{Max: limit, StepID: step.ID}
		}

		res, outcome, err := r.executeStep(ctx, step)
		if err != nil {
			return err
		}
		if outcome != outcomeRan {
			cursor++
			continue
		}

		branch, targets := "onSuccess", step.OnSuccess
		if !res.Success {
			branch, targets = "onFailure", step.OnFailure
		}
		cursor = r.nextCursor(step.ID, branch, targets, index, cursor)
	}
	return nil
}

// nextCursor resolves a jump. Only the first target is used; an unknown
// target is logged and execution falls through.
func (r *run) nextCursor(stepID, branch string, targets []string, index map[string]int, cursor int) int {
	if len(targets) == 0 {
		return cursor + 1
	}
	next, ok := index[targets[0]]
	if !ok {
		observability.LogBranchTargetMissing(r.logger, stepID, branch, targets[0])
		return cursor + 1
	}
	return next
}
