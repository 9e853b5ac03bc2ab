package canary

import "fmt"

// PlanSteps produces the ordered traffic schedule for a rollout: starting at
// initial percent, adding increment percent per step, with the final step
// clamped to exactly target percent. The returned steps are 1-based, strictly
// increasing, and all pending.
func PlanSteps(initial, target, increment int) ([]Step, error) {
	if initial <= 0 || initial > 100 {
		return nil, fmt.Errorf("%w: initial percent %d must be in (0,100]", ErrInvalidConfiguration, initial)
	}
	if target > 100 {
		return nil, fmt.Errorf("%w: target percent %d must be at most 100", ErrInvalidConfiguration, target)
	}
	if initial > target {
		return nil, fmt.Errorf("%w: initial percent %d exceeds target percent %d", ErrInvalidConfiguration, initial, target)
	}
	if increment <= 0 {
		return nil, fmt.Errorf("%w: increment percent %d must be positive", ErrInvalidConfiguration, increment)
	}

	var steps []Step
	for percent, number := initial, 1; ; number++ {
		if percent > target {
			percent = target
		}
		steps = append(steps, Step{
			Number:        number,
			TargetPercent: percent,
			Status:        StepPending,
		})
		if percent == target {
			break
		}
		percent += increment
	}
	return steps, nil
}
