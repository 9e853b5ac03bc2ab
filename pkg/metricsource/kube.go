package metricsource

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apollo/canaria/pkg/canary"
)

// DefaultCanarySuffix names the canary Deployment relative to the target.
const DefaultCanarySuffix = "-canary"

// Kube reads canary pod counts from the canary Deployment's status.
// Rates are not populated; pair with a rates source via Composite.
type Kube struct {
	Client client.Client
	// CanarySuffix is appended to the workload name to locate the canary
	// Deployment. Defaults to "-canary".
	CanarySuffix string
}

func (k *Kube) Sample(ctx context.Context, d *canary.Deployment, _ canary.Step) (*canary.MetricsSnapshot, error) {
	suffix := k.CanarySuffix
	if suffix == "" {
		suffix = DefaultCanarySuffix
	}
	key := types.NamespacedName{
		Name:      d.Workload.Name + suffix,
		Namespace: d.Workload.Namespace,
	}

	var dep appsv1.Deployment
	if err := k.Client.Get(ctx, key, &dep); err != nil {
		return nil, fmt.Errorf("canary deployment %s: %w", key, err)
	}

	return &canary.MetricsSnapshot{
		CanaryHealthyPods: int(dep.Status.ReadyReplicas),
		CanaryTotalPods:   int(dep.Status.Replicas),
	}, nil
}
