package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/apollo/canaria/pkg/canary"
	"github.com/apollo/canaria/pkg/engine"
	"github.com/apollo/canaria/pkg/store"
)

type recordingController struct {
	splits  []int
	reverts int
	fail    bool
}

func (r *recordingController) ApplyTrafficSplit(_ context.Context, _ canary.WorkloadRef, percent int) error {
	if r.fail {
		return errors.New("mesh unavailable")
	}
	r.splits = append(r.splits, percent)
	return nil
}

func (r *recordingController) RevertToStable(_ context.Context, _ canary.WorkloadRef) error {
	if r.fail {
		return errors.New("mesh unavailable")
	}
	r.reverts++
	return nil
}

func testConfig() canary.Config {
	return canary.Config{
		Workload:      canary.WorkloadRef{Name: "web", Namespace: "prod"},
		StableVersion: "v1.4.2",
		StableImage:   "registry.example.com/apps/web:v1.4.2",
		CanaryVersion: "v1.5.0",
		CanaryImage:   "registry.example.com/apps/web:v1.5.0",
		Plan:          canary.TrafficPlan{InitialPercent: 10, TargetPercent: 100, IncrementPercent: 30},
		Thresholds:    canary.Thresholds{ErrorRatePercent: 5, LatencyMs: 1000, SuccessRatePercent: 95, MinHealthyPods: 1},
		Policy:        canary.RollbackPolicy{AutoRollback: true, OnErrorRate: true, OnLatency: true, OnPodFailure: true},
	}
}

func startedDeployment(t *testing.T, eng *engine.Engine) *canary.Deployment {
	t.Helper()
	ctx := context.Background()
	d, err := eng.Create(ctx, testConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	d, err = eng.Start(ctx, d.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d
}

func TestApplyDecisionAppliesActiveSplit(t *testing.T) {
	eng := engine.New(store.NewMemory(), logr.Discard())
	ctl := &recordingController{}
	d := startedDeployment(t, eng)

	out, err := ApplyDecision(context.Background(), eng, ctl, d, logr.Discard())
	if err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}
	if out.Status != canary.StatusInitializing {
		t.Fatalf("status = %q, want initializing", out.Status)
	}
	if len(ctl.splits) != 1 || ctl.splits[0] != 10 {
		t.Fatalf("splits = %v, want [10]", ctl.splits)
	}
}

func TestApplyDecisionCompletesRollback(t *testing.T) {
	eng := engine.New(store.NewMemory(), logr.Discard())
	ctl := &recordingController{}
	d := startedDeployment(t, eng)

	d, err := eng.RollbackNow(context.Background(), d.ID, "oncall", "bad deploy")
	if err != nil {
		t.Fatalf("RollbackNow: %v", err)
	}

	out, err := ApplyDecision(context.Background(), eng, ctl, d, logr.Discard())
	if err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}
	if out.Status != canary.StatusRolledBack {
		t.Fatalf("status = %q, want rolled_back", out.Status)
	}
	if ctl.reverts != 1 {
		t.Fatalf("reverts = %d, want 1", ctl.reverts)
	}
}

func TestApplyDecisionRevertFailureFailsDeployment(t *testing.T) {
	eng := engine.New(store.NewMemory(), logr.Discard())
	ctl := &recordingController{fail: true}
	d := startedDeployment(t, eng)

	d, err := eng.RollbackNow(context.Background(), d.ID, "oncall", "bad deploy")
	if err != nil {
		t.Fatalf("RollbackNow: %v", err)
	}

	out, err := ApplyDecision(context.Background(), eng, ctl, d, logr.Discard())
	if err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}
	if out.Status != canary.StatusFailed {
		t.Fatalf("status = %q, want failed", out.Status)
	}
	if out.Rollbacks[0].Status != canary.RollbackFailed {
		t.Fatalf("record status = %q, want failed", out.Rollbacks[0].Status)
	}
}

func TestApplyDecisionSplitFailureMarksFailed(t *testing.T) {
	eng := engine.New(store.NewMemory(), logr.Discard())
	ctl := &recordingController{fail: true}
	d := startedDeployment(t, eng)

	out, err := ApplyDecision(context.Background(), eng, ctl, d, logr.Discard())
	if err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}
	if out.Status != canary.StatusFailed {
		t.Fatalf("status = %q, want failed", out.Status)
	}
}

func TestApplyDecisionNilControllerIsNoop(t *testing.T) {
	eng := engine.New(store.NewMemory(), logr.Discard())
	d := startedDeployment(t, eng)

	out, err := ApplyDecision(context.Background(), eng, nil, d, logr.Discard())
	if err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}
	if out.Status != canary.StatusInitializing {
		t.Fatalf("status = %q, want unchanged", out.Status)
	}
}

func TestPollerDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := NewPoller(nil, nil, nil, time.Second, logr.Discard())
	p.now = func() time.Time { return now }

	recent := now.Add(-2 * time.Minute)
	stale := now.Add(-10 * time.Minute)

	cases := []struct {
		name string
		d    canary.Deployment
		want bool
	}{
		{
			name: "active with elapsed interval",
			d: canary.Deployment{
				Status:         canary.StatusProgressing,
				Config:         canary.Config{Plan: canary.TrafficPlan{IncrementIntervalMinutes: 5}},
				LastProgressAt: &stale,
			},
			want: true,
		},
		{
			name: "active before interval elapses",
			d: canary.Deployment{
				Status:         canary.StatusProgressing,
				Config:         canary.Config{Plan: canary.TrafficPlan{IncrementIntervalMinutes: 5}},
				LastProgressAt: &recent,
			},
			want: false,
		},
		{
			name: "active with no interval configured",
			d: canary.Deployment{
				Status:         canary.StatusProgressing,
				LastProgressAt: &recent,
			},
			want: true,
		},
		{
			name: "rolling back is always due",
			d:    canary.Deployment{Status: canary.StatusRollingBack},
			want: true,
		},
		{
			name: "paused is never due",
			d:    canary.Deployment{Status: canary.StatusPaused},
			want: false,
		},
		{
			name: "terminal is never due",
			d:    canary.Deployment{Status: canary.StatusPromoted},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.due(&tc.d); got != tc.want {
				t.Fatalf("due() = %v, want %v", got, tc.want)
			}
		})
	}
}
