package workload

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apollo/canaria/pkg/canary"
)

// WeightAnnotation carries the desired traffic weight on a Service. A mesh
// or ingress controller reads it to route traffic accordingly.
const WeightAnnotation = "canaria.apollo.dev/weight"

const maxPatchAttempts = 3

// Kube writes traffic weights onto the stable and canary Services of the
// target workload.
type Kube struct {
	Client client.Client
	Log    logr.Logger
}

// NewKube constructs a Kubernetes-backed controller.
func NewKube(c client.Client, log logr.Logger) *Kube {
	return &Kube{Client: c, Log: log}
}

func (k *Kube) ApplyTrafficSplit(ctx context.Context, ref canary.WorkloadRef, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("traffic percent %d out of range", percent)
	}
	if err := k.setWeight(ctx, ref.Namespace, ref.StableService, 100-percent); err != nil {
		return err
	}
	if err := k.setWeight(ctx, ref.Namespace, ref.CanaryService, percent); err != nil {
		return err
	}
	k.Log.Info("traffic split applied", "workload", ref.Name, "namespace", ref.Namespace, "canaryPercent", percent)
	return nil
}

func (k *Kube) RevertToStable(ctx context.Context, ref canary.WorkloadRef) error {
	return k.ApplyTrafficSplit(ctx, ref, 0)
}

func (k *Kube) setWeight(ctx context.Context, namespace, name string, weight int) error {
	if name == "" {
		return nil
	}
	key := types.NamespacedName{Name: name, Namespace: namespace}

	for attempt := 0; attempt < maxPatchAttempts; attempt++ {
		var svc corev1.Service
		if err := k.Client.Get(ctx, key, &svc); err != nil {
			return fmt.Errorf("service %s: %w", key, err)
		}
		if svc.Annotations == nil {
			svc.Annotations = map[string]string{}
		}
		if svc.Annotations[WeightAnnotation] == strconv.Itoa(weight) {
			return nil
		}
		svc.Annotations[WeightAnnotation] = strconv.Itoa(weight)
		if err := k.Client.Update(ctx, &svc); err != nil {
			if apierrors.IsConflict(err) {
				continue
			}
			return fmt.Errorf("service %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("service %s: update conflict after retries", key)
}
