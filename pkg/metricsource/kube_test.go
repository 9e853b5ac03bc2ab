package metricsource

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/apollo/canaria/pkg/canary"
)

func TestKubeSampleReadsCanaryPodCounts(t *testing.T) {
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web-canary", Namespace: "prod"},
		Status: appsv1.DeploymentStatus{
			Replicas:      3,
			ReadyReplicas: 2,
		},
	}
	c := fake.NewClientBuilder().WithScheme(scheme.Scheme).WithObjects(dep).Build()

	k := &Kube{Client: c}
	snap, err := k.Sample(context.Background(), sampleDeployment(), canary.Step{Number: 1})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if snap.CanaryHealthyPods != 2 || snap.CanaryTotalPods != 3 {
		t.Fatalf("snapshot = %+v, want 2/3 pods", snap)
	}
}

func TestKubeSampleMissingDeploymentFails(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(scheme.Scheme).Build()
	k := &Kube{Client: c}
	if _, err := k.Sample(context.Background(), sampleDeployment(), canary.Step{Number: 1}); err == nil {
		t.Fatal("Sample = nil error, want failure for missing canary deployment")
	}
}
