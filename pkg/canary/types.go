// Copyright 2025 Apollo
// SPDX-License-Identifier: Apache-2.0

package canary

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Status enumerates deployment lifecycle states.
type Status string

const (
	StatusPending      Status = "pending"
	StatusInitializing Status = "initializing"
	StatusProgressing  Status = "progressing"
	StatusPaused       Status = "paused"
	StatusPromoted     Status = "promoted"
	StatusRollingBack  Status = "rolling_back"
	StatusRolledBack   Status = "rolled_back"
	StatusCancelled    Status = "cancelled"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusPromoted, StatusRolledBack, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Active reports whether the deployment is currently being progressed.
func (s Status) Active() bool {
	return s == StatusInitializing || s == StatusProgressing
}

// StepStatus enumerates traffic step states.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// RollbackTrigger identifies what initiated a rollback.
type RollbackTrigger string

const (
	TriggerErrorRate   RollbackTrigger = "auto_error_rate"
	TriggerLatency     RollbackTrigger = "auto_latency"
	TriggerPodFailure  RollbackTrigger = "auto_pod_failure"
	TriggerHealthCheck RollbackTrigger = "auto_health_check"
	TriggerManual      RollbackTrigger = "manual"
	TriggerTimeout     RollbackTrigger = "timeout"
	TriggerCancelled   RollbackTrigger = "cancelled"
)

// RollbackState enumerates rollback record states.
type RollbackState string

const (
	RollbackInProgress RollbackState = "in_progress"
	RollbackCompleted  RollbackState = "completed"
	RollbackFailed     RollbackState = "failed"
)

// ConditionType enumerates granular deployment conditions.
type ConditionType string

const (
	ConditionValidated  ConditionType = "Validated"
	ConditionStarted    ConditionType = "Started"
	ConditionHealthGate ConditionType = "HealthGate"
	ConditionPromoted   ConditionType = "Promoted"
	ConditionRolledBack ConditionType = "RolledBack"
)

// WorkloadRef identifies the workload a rollout targets.
type WorkloadRef struct {
	// Name of the target deployment.
	Name string `json:"name" validate:"required"`
	// Namespace of the target deployment.
	Namespace string `json:"namespace" validate:"required"`
	// Cluster is an optional cluster identifier for multi-cluster setups.
	Cluster string `json:"cluster,omitempty"`
	// StableService is the Service fronting the stable version. Optional;
	// used by the Kubernetes workload controller for traffic weighting.
	StableService string `json:"stableService,omitempty"`
	// CanaryService is the Service fronting the canary version.
	CanaryService string `json:"canaryService,omitempty"`
}

// TrafficPlan configures the traffic step schedule.
type TrafficPlan struct {
	// InitialPercent is the traffic share of the first step.
	InitialPercent int `json:"initialPercent" validate:"gt=0,lte=100"`
	// TargetPercent is the final traffic share. Defaults to 100.
	TargetPercent int `json:"targetPercent" validate:"gte=0,lte=100"`
	// IncrementPercent is added at each step until TargetPercent is reached.
	IncrementPercent int `json:"incrementPercent" validate:"gt=0"`
	// IncrementIntervalMinutes is an advisory cadence hint for whatever
	// drives Tick. The engine itself never schedules.
	IncrementIntervalMinutes int `json:"incrementIntervalMinutes,omitempty" validate:"gte=0"`
}

// Thresholds configures the health gates evaluated at each tick.
type Thresholds struct {
	// ErrorRatePercent is the maximum tolerated canary error rate.
	ErrorRatePercent float64 `json:"errorRatePercent" validate:"gte=0,lte=100"`
	// LatencyMs is the maximum tolerated canary average latency.
	LatencyMs float64 `json:"latencyMs" validate:"gte=0"`
	// SuccessRatePercent is the minimum success rate required to promote.
	SuccessRatePercent float64 `json:"successRatePercent" validate:"gte=0,lte=100"`
	// MinHealthyPods is the minimum number of healthy canary pods.
	MinHealthyPods int `json:"minHealthyPods" validate:"gte=0"`
}

// RollbackPolicy controls automatic rollback behavior per health dimension.
type RollbackPolicy struct {
	// AutoRollback master-switches all automatic rollbacks.
	AutoRollback bool `json:"autoRollback"`
	// OnErrorRate rolls back when the error-rate gate fails.
	OnErrorRate bool `json:"onErrorRate"`
	// OnLatency rolls back when the latency gate fails.
	OnLatency bool `json:"onLatency"`
	// OnPodFailure rolls back when the healthy-pod gate fails.
	OnPodFailure bool `json:"onPodFailure"`
}

// Config is the immutable configuration of a canary deployment.
type Config struct {
	// Workload is the rollout target.
	Workload WorkloadRef `json:"workload"`
	// StableVersion is the currently serving version identifier.
	StableVersion string `json:"stableVersion" validate:"required"`
	// StableImage is the image of the stable version.
	StableImage string `json:"stableImage" validate:"required"`
	// CanaryVersion is the version identifier under evaluation.
	CanaryVersion string `json:"canaryVersion" validate:"required"`
	// CanaryImage is the image of the canary version.
	CanaryImage string `json:"canaryImage" validate:"required"`
	// Plan is the traffic step schedule configuration.
	Plan TrafficPlan `json:"plan"`
	// Thresholds are the health gates.
	Thresholds Thresholds `json:"thresholds"`
	// Policy controls automatic rollbacks.
	Policy RollbackPolicy `json:"policy"`
	// RequireManualApproval gates automatic promotion past the first step
	// until an external approval signal arrives.
	RequireManualApproval bool `json:"requireManualApproval,omitempty"`
}

// Step is one entry in the traffic schedule, owned by its Deployment.
type Step struct {
	// Number is the 1-based position in the schedule.
	Number int `json:"number"`
	// TargetPercent is the traffic share this step drives to the canary.
	TargetPercent int `json:"targetPercent"`
	// Status is the step lifecycle state.
	Status StepStatus `json:"status"`
	// StartedAt is when the step first became running.
	StartedAt *time.Time `json:"startedAt,omitempty"`
	// CompletedAt is when the step completed or failed.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RollbackRecord captures one rollback attempt, owned by its Deployment.
type RollbackRecord struct {
	ID           string          `json:"id"`
	DeploymentID string          `json:"deploymentId"`
	Trigger      RollbackTrigger `json:"trigger"`
	// CanaryPercentAtRollback is the canary traffic share when the
	// rollback was initiated.
	CanaryPercentAtRollback int `json:"canaryPercentAtRollback"`
	// StepAtRollback is the step number that was active, 0 if none.
	StepAtRollback int `json:"stepAtRollback"`
	// TargetVersion and TargetImage identify the stable version traffic
	// is reverted to.
	TargetVersion string `json:"targetVersion"`
	TargetImage   string `json:"targetImage"`
	InitiatedBy   string `json:"initiatedBy"`
	Reason        string `json:"reason"`
	Status        RollbackState `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
	// ErrorMessage is set when the rollback itself failed.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Deployment is one progressive rollout. It exclusively owns its Steps and
// Rollbacks; deleting a deployment deletes both.
type Deployment struct {
	// ID is an opaque identifier.
	ID string `json:"id"`

	Config `json:",inline"`

	// Status is the lifecycle state.
	Status Status `json:"status"`
	// CurrentCanaryPercent is the traffic share currently directed at the
	// canary. The caller is responsible for applying it to the workload.
	CurrentCanaryPercent int `json:"currentCanaryPercent"`
	// StatusMessage is a human-readable summary of the latest transition.
	StatusMessage string `json:"statusMessage,omitempty"`
	// ResumeTo remembers the pre-pause state so resume can restore it.
	ResumeTo Status `json:"resumeTo,omitempty"`
	// Approved records the external manual-approval signal.
	Approved   bool   `json:"approved,omitempty"`
	ApprovedBy string `json:"approvedBy,omitempty"`

	// Version is the optimistic-concurrency token checked on every write.
	Version int64 `json:"version"`

	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	LastProgressAt *time.Time `json:"lastProgressAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	// Conditions capture granular state transitions.
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// LastVerdict and LastSample record the most recent health evaluation.
	LastVerdict *Verdict         `json:"lastVerdict,omitempty"`
	LastSample  *MetricsSnapshot `json:"lastSample,omitempty"`

	Steps     []Step           `json:"steps"`
	Rollbacks []RollbackRecord `json:"rollbacks,omitempty"`
}

// RunningStep returns the step currently running, or nil.
func (d *Deployment) RunningStep() *Step {
	for i := range d.Steps {
		if d.Steps[i].Status == StepRunning {
			return &d.Steps[i]
		}
	}
	return nil
}

// FirstPendingStep returns the earliest pending step, or nil.
func (d *Deployment) FirstPendingStep() *Step {
	for i := range d.Steps {
		if d.Steps[i].Status == StepPending {
			return &d.Steps[i]
		}
	}
	return nil
}

// NextStep returns the step after the given step number, or nil.
func (d *Deployment) NextStep(after int) *Step {
	for i := range d.Steps {
		if d.Steps[i].Number == after+1 {
			return &d.Steps[i]
		}
	}
	return nil
}

// Rollback returns the rollback record with the given id, or nil.
func (d *Deployment) Rollback(id string) *RollbackRecord {
	for i := range d.Rollbacks {
		if d.Rollbacks[i].ID == id {
			return &d.Rollbacks[i]
		}
	}
	return nil
}

// DeepCopy returns a structurally independent copy of the deployment.
func (d *Deployment) DeepCopy() *Deployment {
	if d == nil {
		return nil
	}
	out := *d
	out.Steps = make([]Step, len(d.Steps))
	for i := range d.Steps {
		out.Steps[i] = d.Steps[i]
		out.Steps[i].StartedAt = copyTime(d.Steps[i].StartedAt)
		out.Steps[i].CompletedAt = copyTime(d.Steps[i].CompletedAt)
	}
	if d.Rollbacks != nil {
		out.Rollbacks = make([]RollbackRecord, len(d.Rollbacks))
		for i := range d.Rollbacks {
			out.Rollbacks[i] = d.Rollbacks[i]
			out.Rollbacks[i].CompletedAt = copyTime(d.Rollbacks[i].CompletedAt)
		}
	}
	if d.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(d.Conditions))
		copy(out.Conditions, d.Conditions)
	}
	if d.LastVerdict != nil {
		v := *d.LastVerdict
		v.Reasons = append([]string(nil), d.LastVerdict.Reasons...)
		out.LastVerdict = &v
	}
	if d.LastSample != nil {
		s := *d.LastSample
		out.LastSample = &s
	}
	out.StartedAt = copyTime(d.StartedAt)
	out.LastProgressAt = copyTime(d.LastProgressAt)
	out.CompletedAt = copyTime(d.CompletedAt)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
