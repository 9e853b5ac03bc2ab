// Package driver connects the engine's decisions to the outside world. The
// engine itself never touches the workload; the driver applies traffic
// splits after each mutation and runs the optional background poller.
package driver

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/apollo/canaria/pkg/canary"
	"github.com/apollo/canaria/pkg/engine"
	"github.com/apollo/canaria/pkg/workload"
)

// ApplyDecision pushes the deployment's current traffic decision to the
// workload controller and reports the outcome back to the engine.
//
// Active and promoted deployments get their current canary share applied.
// A rolling-back deployment gets all traffic reverted to stable, and the
// in-flight rollback record is completed with the result. Apply failures on
// forward traffic mark the deployment failed. The returned deployment
// reflects any state recorded here.
func ApplyDecision(ctx context.Context, eng *engine.Engine, ctl workload.Controller, d *canary.Deployment, log logr.Logger) (*canary.Deployment, error) {
	if ctl == nil || d == nil {
		return d, nil
	}

	switch {
	case d.Status == canary.StatusRollingBack:
		rec := inFlightRollback(d)
		if rec == nil {
			return d, nil
		}
		if err := ctl.RevertToStable(ctx, d.Workload); err != nil {
			log.Error(err, "revert to stable failed", "id", d.ID)
			return eng.CompleteRollback(ctx, d.ID, rec.ID, false, err.Error())
		}
		return eng.CompleteRollback(ctx, d.ID, rec.ID, true, "")

	case d.Status == canary.StatusCancelled:
		if err := ctl.RevertToStable(ctx, d.Workload); err != nil {
			log.Error(err, "revert to stable failed", "id", d.ID)
			return eng.MarkFailed(ctx, d.ID, "traffic revert failed: "+err.Error())
		}
		return d, nil

	case d.Status.Active() || d.Status == canary.StatusPromoted:
		if err := ctl.ApplyTrafficSplit(ctx, d.Workload, d.CurrentCanaryPercent); err != nil {
			log.Error(err, "traffic split failed", "id", d.ID, "percent", d.CurrentCanaryPercent)
			return eng.MarkFailed(ctx, d.ID, "traffic split failed: "+err.Error())
		}
		return d, nil
	}
	return d, nil
}

func inFlightRollback(d *canary.Deployment) *canary.RollbackRecord {
	for i := len(d.Rollbacks) - 1; i >= 0; i-- {
		if d.Rollbacks[i].Status == canary.RollbackInProgress {
			return &d.Rollbacks[i]
		}
	}
	return nil
}

// Poller ticks every active deployment on a fixed cadence. Each deployment
// advances only once its own increment interval has elapsed since the last
// progress, so one poller serves schedules of different speeds.
type Poller struct {
	Engine   *engine.Engine
	Source   engine.MetricsSource
	Workload workload.Controller
	Interval time.Duration
	Log      logr.Logger

	// Injection point for tests.
	now func() time.Time
}

// NewPoller constructs a poller. Interval defaults to 30 seconds.
func NewPoller(eng *engine.Engine, src engine.MetricsSource, ctl workload.Controller, interval time.Duration, log logr.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		Engine:   eng,
		Source:   src,
		Workload: ctl,
		Interval: interval,
		Log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	ds, err := p.Engine.ListDeployments(ctx)
	if err != nil {
		p.Log.Error(err, "list deployments")
		return
	}
	for _, d := range ds {
		if !p.due(d) {
			continue
		}
		out, err := p.Engine.Tick(ctx, d.ID, p.Source)
		if err != nil {
			p.Log.Error(err, "tick failed", "id", d.ID)
			continue
		}
		if _, err := ApplyDecision(ctx, p.Engine, p.Workload, out, p.Log); err != nil {
			p.Log.Error(err, "apply decision failed", "id", d.ID)
		}
	}
}

// due reports whether the deployment's increment interval has elapsed.
// Rolling-back deployments are always due so reverts are not delayed.
func (p *Poller) due(d *canary.Deployment) bool {
	if d.Status == canary.StatusRollingBack {
		return true
	}
	if !d.Status.Active() {
		return false
	}
	wait := time.Duration(d.Plan.IncrementIntervalMinutes) * time.Minute
	if wait <= 0 || d.LastProgressAt == nil {
		return true
	}
	return p.now().Sub(*d.LastProgressAt) >= wait
}
