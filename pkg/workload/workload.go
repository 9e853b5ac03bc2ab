// Package workload applies traffic decisions to the real workload. The
// engine computes what the split should be; a Controller performs it.
package workload

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/apollo/canaria/pkg/canary"
)

// Controller applies traffic splits decided by the engine.
type Controller interface {
	// ApplyTrafficSplit directs the given percentage of traffic at the
	// canary, the remainder at the stable version.
	ApplyTrafficSplit(ctx context.Context, ref canary.WorkloadRef, percent int) error
	// RevertToStable returns all traffic to the stable version.
	RevertToStable(ctx context.Context, ref canary.WorkloadRef) error
}

// Noop logs the requested split without touching anything. Used in
// development and tests.
type Noop struct {
	Log logr.Logger
}

func (n Noop) ApplyTrafficSplit(_ context.Context, ref canary.WorkloadRef, percent int) error {
	n.Log.V(1).Info("traffic split (noop)", "workload", ref.Name, "namespace", ref.Namespace, "canaryPercent", percent)
	return nil
}

func (n Noop) RevertToStable(_ context.Context, ref canary.WorkloadRef) error {
	n.Log.V(1).Info("revert to stable (noop)", "workload", ref.Name, "namespace", ref.Namespace)
	return nil
}
