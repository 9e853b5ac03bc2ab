package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/apollo/canaria/pkg/canary"
	"github.com/apollo/canaria/pkg/conditions"
	"github.com/apollo/canaria/pkg/store"
)

// initiateRollback records a rollback attempt on the deployment: it captures
// the current step and traffic share, the stable version as revert target,
// fails the active step, and moves the deployment to rolling_back. The
// caller persists the deployment.
func (e *Engine) initiateRollback(d *canary.Deployment, trigger canary.RollbackTrigger, reason, initiatedBy string, now time.Time) *canary.RollbackRecord {
	stepNumber := 0
	if step := d.RunningStep(); step != nil {
		stepNumber = step.Number
		step.Status = canary.StepFailed
		step.CompletedAt = &now
	} else if step := d.FirstPendingStep(); step != nil && d.Status == canary.StatusPaused {
		// Paused deployments park the active step as pending.
		stepNumber = step.Number
		step.Status = canary.StepFailed
		step.CompletedAt = &now
	}

	rec := canary.RollbackRecord{
		ID:                      e.newID(),
		DeploymentID:            d.ID,
		Trigger:                 trigger,
		CanaryPercentAtRollback: d.CurrentCanaryPercent,
		StepAtRollback:          stepNumber,
		TargetVersion:           d.StableVersion,
		TargetImage:             d.StableImage,
		InitiatedBy:             initiatedBy,
		Reason:                  reason,
		Status:                  canary.RollbackInProgress,
		CreatedAt:               now,
	}
	d.Rollbacks = append(d.Rollbacks, rec)

	d.Status = canary.StatusRollingBack
	d.StatusMessage = reason
	conditions.MarkFalse(&d.Conditions, canary.ConditionHealthGate, "RollbackInitiated", reason)
	rollbacksTotal.WithLabelValues(string(trigger)).Inc()

	e.log.Info("rollback initiated", "id", d.ID, "trigger", trigger, "step", stepNumber, "percent", rec.CanaryPercentAtRollback)
	return &d.Rollbacks[len(d.Rollbacks)-1]
}

// CompleteRollback finalizes a rollback attempt. On success the deployment
// reaches rolled_back with zero canary traffic; on failure both the record
// and the deployment are marked failed, since "attempted revert, also
// failed" must stay distinguishable from a clean revert. Completing an
// already-finalized record is a no-op.
func (e *Engine) CompleteRollback(ctx context.Context, id, rollbackID string, success bool, errorMessage string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := d.Rollback(rollbackID)
	if rec == nil {
		return nil, fmt.Errorf("%w: no rollback record %q", store.ErrNotFound, rollbackID)
	}
	if rec.Status != canary.RollbackInProgress {
		return d, nil
	}

	now := e.now()
	rec.CompletedAt = &now
	if success {
		rec.Status = canary.RollbackCompleted
		d.Status = canary.StatusRolledBack
		d.CurrentCanaryPercent = 0
		d.CompletedAt = &now
		d.StatusMessage = fmt.Sprintf("rolled back to %s", rec.TargetVersion)
		conditions.MarkTrue(&d.Conditions, canary.ConditionRolledBack, "RollbackComplete", d.StatusMessage)
	} else {
		rec.Status = canary.RollbackFailed
		rec.ErrorMessage = errorMessage
		d.Status = canary.StatusFailed
		d.CompletedAt = &now
		d.StatusMessage = fmt.Sprintf("rollback failed: %s", errorMessage)
		conditions.MarkFalse(&d.Conditions, canary.ConditionRolledBack, "RollbackFailed", errorMessage)
	}

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("rollback completed", "id", d.ID, "rollback", rollbackID, "success", success)
	return d, nil
}
