package canary

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfiguration is returned when a rollout configuration is
// rejected before anything is persisted.
var ErrInvalidConfiguration = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Plan.TargetPercent == 0 {
		c.Plan.TargetPercent = 100
	}
}

// Validate rejects configurations that cannot produce a legal step plan.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if _, err := PlanSteps(c.Plan.InitialPercent, c.Plan.TargetPercent, c.Plan.IncrementPercent); err != nil {
		return err
	}
	return nil
}
