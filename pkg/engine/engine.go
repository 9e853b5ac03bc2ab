// Package engine drives canary deployments through their traffic schedule.
//
// The engine is pull-based: it performs no blocking I/O and runs no timers.
// An external caller invokes Tick on a cadence of its choosing and is
// responsible for applying the resulting traffic split to the workload.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/apollo/canaria/pkg/canary"
	"github.com/apollo/canaria/pkg/conditions"
	"github.com/apollo/canaria/pkg/store"
)

// ErrInvalidTransition is returned when an operation is not legal in the
// deployment's current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// MetricsSource supplies the health snapshot consumed by a tick. A nil
// snapshot (or an error) makes the tick inconclusive, never healthy.
type MetricsSource interface {
	Sample(ctx context.Context, d *canary.Deployment, step canary.Step) (*canary.MetricsSnapshot, error)
}

// Advisor turns a degraded or unhealthy verdict into a human-readable
// narrative. Advisory only: failures are swallowed and never affect the
// decision.
type Advisor interface {
	Narrate(ctx context.Context, d *canary.Deployment, v canary.Verdict) (string, error)
}

// ImageResolver verifies that an image reference resolves in its registry.
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Engine is the progression state machine over a deployment store.
// All mutations for one deployment id are serialized by a per-id lock;
// different deployments are fully independent.
type Engine struct {
	store          store.Store
	log            logr.Logger
	advisor        Advisor
	resolver       ImageResolver
	advisorTimeout time.Duration

	// Injection points for tests.
	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithAdvisor attaches a best-effort narrative advisor.
func WithAdvisor(a Advisor) Option {
	return func(e *Engine) { e.advisor = a }
}

// WithAdvisorTimeout bounds how long a tick may wait on the advisor.
func WithAdvisorTimeout(d time.Duration) Option {
	return func(e *Engine) { e.advisorTimeout = d }
}

// WithImageResolver enables creation-time verification of the canary image.
func WithImageResolver(r ImageResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New constructs an engine over the given store.
func New(s store.Store, log logr.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		log:            log,
		advisorTimeout: 3 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		locks:          make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Create validates the configuration, plans the traffic schedule, and
// persists a new pending deployment. Nothing is persisted on rejection.
func (e *Engine) Create(ctx context.Context, cfg canary.Config) (*canary.Deployment, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if e.resolver != nil {
		if _, err := e.resolver.Resolve(ctx, cfg.CanaryImage); err != nil {
			return nil, fmt.Errorf("%w: canary image %q does not resolve: %v", canary.ErrInvalidConfiguration, cfg.CanaryImage, err)
		}
	}

	steps, err := canary.PlanSteps(cfg.Plan.InitialPercent, cfg.Plan.TargetPercent, cfg.Plan.IncrementPercent)
	if err != nil {
		return nil, err
	}

	d := &canary.Deployment{
		ID:        e.newID(),
		Config:    cfg,
		Status:    canary.StatusPending,
		CreatedAt: e.now(),
		Steps:     steps,
		Version:   1,
	}
	conditions.MarkTrue(&d.Conditions, canary.ConditionValidated, "ConfigAccepted", fmt.Sprintf("planned %d traffic steps", len(steps)))

	if err := e.store.Create(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("deployment created", "id", d.ID, "workload", d.Workload.Name, "steps", len(steps))
	return d, nil
}

// Start moves a pending or paused deployment to initializing and marks the
// first unfinished step running.
func (e *Engine) Start(ctx context.Context, id string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != canary.StatusPending && d.Status != canary.StatusPaused {
		return nil, fmt.Errorf("%w: cannot start deployment in status %q", ErrInvalidTransition, d.Status)
	}

	now := e.now()
	step := d.FirstPendingStep()
	if step == nil {
		return nil, fmt.Errorf("%w: no pending step to run", ErrInvalidTransition)
	}
	step.Status = canary.StepRunning
	if step.StartedAt == nil {
		step.StartedAt = &now
	}

	d.Status = canary.StatusInitializing
	d.ResumeTo = ""
	if d.StartedAt == nil {
		d.StartedAt = &now
	}
	d.CurrentCanaryPercent = step.TargetPercent
	d.LastProgressAt = &now
	d.StatusMessage = fmt.Sprintf("step %d running at %d%% canary traffic", step.Number, step.TargetPercent)
	conditions.MarkTrue(&d.Conditions, canary.ConditionStarted, "RolloutStarted", d.StatusMessage)

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("deployment started", "id", d.ID, "step", step.Number, "percent", step.TargetPercent)
	return d, nil
}

// Tick runs one evaluation cycle: sample metrics, analyze, then advance,
// hold, or initiate a rollback. Ticks on terminal, paused, pending, or
// rolling-back deployments are no-ops, which makes a tick racing a cancel
// harmless. Calling Tick again with no new signal repeats the same decision
// without double-applying it.
func (e *Engine) Tick(ctx context.Context, id string, src MetricsSource) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.Active() {
		tickTotal.WithLabelValues("noop").Inc()
		return d, nil
	}

	step := d.RunningStep()
	if step == nil {
		return nil, fmt.Errorf("%w: active deployment has no running step", ErrInvalidTransition)
	}

	var sample *canary.MetricsSnapshot
	if src != nil {
		sample, err = src.Sample(ctx, d, *step)
		if err != nil {
			e.log.V(1).Info("metrics sample unavailable", "id", d.ID, "error", err.Error())
			sample = nil
		}
	}

	now := e.now()
	v := canary.Analyze(d.Thresholds, d.Policy, sample)
	e.narrate(ctx, d, &v)
	d.LastSample = sample
	d.LastVerdict = &v
	tickTotal.WithLabelValues(string(v.Result)).Inc()

	switch {
	case v.ShouldRollback:
		e.initiateRollback(d, v.Trigger, strings.Join(v.Reasons, "; "), "health-analyzer", now)
	case v.ShouldPromote:
		if d.RequireManualApproval && !d.Approved {
			d.StatusMessage = fmt.Sprintf("step %d healthy; holding for manual approval", step.Number)
		} else {
			e.advance(d, step, now)
		}
	default:
		// Degraded or inconclusive without a rollback trigger: hold.
		d.StatusMessage = fmt.Sprintf("holding at %d%%: %s", d.CurrentCanaryPercent, strings.Join(append([]string{string(v.Result)}, v.Reasons...), "; "))
	}

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.V(1).Info("tick evaluated", "id", d.ID, "result", v.Result, "status", d.Status, "percent", d.CurrentCanaryPercent)
	return d, nil
}

// narrate asks the advisor for a narrative on degraded/unhealthy verdicts.
// Bounded by advisorTimeout; errors are logged and swallowed.
func (e *Engine) narrate(ctx context.Context, d *canary.Deployment, v *canary.Verdict) {
	if e.advisor == nil {
		return
	}
	if v.Result != canary.AnalysisDegraded && v.Result != canary.AnalysisUnhealthy {
		return
	}
	actx, cancel := context.WithTimeout(ctx, e.advisorTimeout)
	defer cancel()
	text, err := e.advisor.Narrate(actx, d, *v)
	if err != nil {
		e.log.V(1).Info("advisor unavailable", "id", d.ID, "error", err.Error())
		return
	}
	v.Narrative = text
}

// advance completes the running step and either starts the next step or
// promotes the deployment.
func (e *Engine) advance(d *canary.Deployment, step *canary.Step, now time.Time) {
	step.Status = canary.StepCompleted
	step.CompletedAt = &now
	conditions.MarkTrue(&d.Conditions, canary.ConditionHealthGate, "StepPassed", fmt.Sprintf("step %d passed at %d%%", step.Number, step.TargetPercent))

	if next := d.NextStep(step.Number); next != nil {
		next.Status = canary.StepRunning
		next.StartedAt = &now
		d.Status = canary.StatusProgressing
		d.CurrentCanaryPercent = next.TargetPercent
		d.LastProgressAt = &now
		d.StatusMessage = fmt.Sprintf("step %d running at %d%% canary traffic", next.Number, next.TargetPercent)
		return
	}

	d.Status = canary.StatusPromoted
	d.CurrentCanaryPercent = 100
	d.LastProgressAt = &now
	d.CompletedAt = &now
	d.StatusMessage = fmt.Sprintf("canary %s promoted", d.CanaryVersion)
	conditions.MarkTrue(&d.Conditions, canary.ConditionPromoted, "RolloutComplete", d.StatusMessage)
	promotionsTotal.Inc()
}

// PromoteNow is the manual override: it completes the running step without
// consulting the health analyzer and bypasses the approval gate.
func (e *Engine) PromoteNow(ctx context.Context, id string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.Active() {
		return nil, fmt.Errorf("%w: cannot promote deployment in status %q", ErrInvalidTransition, d.Status)
	}
	step := d.RunningStep()
	if step == nil {
		return nil, fmt.Errorf("%w: active deployment has no running step", ErrInvalidTransition)
	}

	e.advance(d, step, e.now())
	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("manual promotion", "id", d.ID, "status", d.Status, "percent", d.CurrentCanaryPercent)
	return d, nil
}

// RollbackNow is the manual override: it initiates a rollback without
// consulting the health analyzer.
func (e *Engine) RollbackNow(ctx context.Context, id, initiatedBy, reason string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.Active() && d.Status != canary.StatusPaused {
		return nil, fmt.Errorf("%w: cannot roll back deployment in status %q", ErrInvalidTransition, d.Status)
	}
	if reason == "" {
		reason = "manual rollback"
	}

	e.initiateRollback(d, canary.TriggerManual, reason, initiatedBy, e.now())
	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("manual rollback initiated", "id", d.ID, "initiatedBy", initiatedBy)
	return d, nil
}

// Pause suspends progression. The running step returns to pending so that
// no step is running while paused; Resume restores it.
func (e *Engine) Pause(ctx context.Context, id string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.Active() {
		return nil, fmt.Errorf("%w: cannot pause deployment in status %q", ErrInvalidTransition, d.Status)
	}

	if step := d.RunningStep(); step != nil {
		step.Status = canary.StepPending
	}
	d.ResumeTo = d.Status
	d.Status = canary.StatusPaused
	d.StatusMessage = fmt.Sprintf("paused at %d%% canary traffic", d.CurrentCanaryPercent)

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("deployment paused", "id", d.ID, "percent", d.CurrentCanaryPercent)
	return d, nil
}

// Resume returns a paused deployment to the state it was paused from.
func (e *Engine) Resume(ctx context.Context, id string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != canary.StatusPaused {
		return nil, fmt.Errorf("%w: cannot resume deployment in status %q", ErrInvalidTransition, d.Status)
	}

	step := d.FirstPendingStep()
	if step == nil {
		return nil, fmt.Errorf("%w: no pending step to resume", ErrInvalidTransition)
	}
	now := e.now()
	step.Status = canary.StepRunning
	if step.StartedAt == nil {
		step.StartedAt = &now
	}

	if d.ResumeTo.Active() {
		d.Status = d.ResumeTo
	} else {
		d.Status = canary.StatusProgressing
	}
	d.ResumeTo = ""
	d.StatusMessage = fmt.Sprintf("step %d running at %d%% canary traffic", step.Number, step.TargetPercent)

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("deployment resumed", "id", d.ID, "step", step.Number)
	return d, nil
}

// Cancel terminates any non-terminal deployment. Remaining pending steps
// become skipped; a running step is left as-is for history. Cancellation
// takes effect immediately: subsequent ticks are no-ops.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot cancel deployment in status %q", ErrInvalidTransition, d.Status)
	}

	now := e.now()
	for i := range d.Steps {
		if d.Steps[i].Status == canary.StepPending {
			d.Steps[i].Status = canary.StepSkipped
		}
	}
	d.Status = canary.StatusCancelled
	d.CompletedAt = &now
	if reason == "" {
		reason = "cancelled by operator"
	}
	d.StatusMessage = reason

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("deployment cancelled", "id", d.ID, "reason", reason)
	return d, nil
}

// Approve records the external manual-approval signal, unblocking automatic
// promotion past step 1 for deployments that require it.
func (e *Engine) Approve(ctx context.Context, id, approvedBy string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot approve deployment in status %q", ErrInvalidTransition, d.Status)
	}

	d.Approved = true
	d.ApprovedBy = approvedBy
	d.StatusMessage = fmt.Sprintf("promotion approved by %s", approvedBy)

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("promotion approved", "id", d.ID, "approvedBy", approvedBy)
	return d, nil
}

// MarkFailed records a caller-reported workload failure (for example a
// traffic-split apply error) as the terminal failed state. Not auto-retried.
func (e *Engine) MarkFailed(ctx context.Context, id, message string) (*canary.Deployment, error) {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()

	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return d, nil
	}

	now := e.now()
	d.Status = canary.StatusFailed
	d.StatusMessage = message
	d.CompletedAt = &now

	if err := e.store.Update(ctx, d); err != nil {
		return nil, err
	}
	e.log.Info("deployment failed", "id", d.ID, "message", message)
	return d, nil
}

// GetDeployment returns a deployment by id.
func (e *Engine) GetDeployment(ctx context.Context, id string) (*canary.Deployment, error) {
	return e.store.Get(ctx, id)
}

// ListDeployments returns all deployments.
func (e *Engine) ListDeployments(ctx context.Context) ([]*canary.Deployment, error) {
	return e.store.List(ctx)
}

// GetSteps returns the traffic schedule of a deployment.
func (e *Engine) GetSteps(ctx context.Context, id string) ([]canary.Step, error) {
	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Steps, nil
}

// GetRollbackHistory returns the rollback records of a deployment.
func (e *Engine) GetRollbackHistory(ctx context.Context, id string) ([]canary.RollbackRecord, error) {
	d, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Rollbacks, nil
}

// DeleteDeployment removes a deployment and, with it, its owned steps and
// rollback records.
func (e *Engine) DeleteDeployment(ctx context.Context, id string) error {
	l := e.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return e.store.Delete(ctx, id)
}
