// Package metricsource supplies health snapshots for tick evaluation.
// Sources never fabricate data: when a backend is unreachable they return an
// error so the tick comes out inconclusive rather than healthy.
package metricsource

import (
	"context"

	"github.com/apollo/canaria/pkg/canary"
)

// Source produces one metrics snapshot for the given deployment and step.
type Source interface {
	Sample(ctx context.Context, d *canary.Deployment, step canary.Step) (*canary.MetricsSnapshot, error)
}

// Static returns a fixed snapshot. Used in tests and by callers that carry
// their own observation (for example a tick request with an inline sample).
type Static struct {
	Snapshot *canary.MetricsSnapshot
}

func (s Static) Sample(_ context.Context, _ *canary.Deployment, _ canary.Step) (*canary.MetricsSnapshot, error) {
	return s.Snapshot, nil
}

// Composite combines a rates source (error rate, latency) with a pods
// source (healthy/total pod counts). Either failing fails the sample.
type Composite struct {
	Rates Source
	Pods  Source
}

func (c Composite) Sample(ctx context.Context, d *canary.Deployment, step canary.Step) (*canary.MetricsSnapshot, error) {
	out, err := c.Rates.Sample(ctx, d, step)
	if err != nil {
		return nil, err
	}
	pods, err := c.Pods.Sample(ctx, d, step)
	if err != nil {
		return nil, err
	}
	merged := *out
	merged.CanaryHealthyPods = pods.CanaryHealthyPods
	merged.CanaryTotalPods = pods.CanaryTotalPods
	return &merged, nil
}
