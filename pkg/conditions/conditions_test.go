package conditions

import (
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/apollo/canaria/pkg/canary"
)

func TestSetConditionAddsAndUpdates(t *testing.T) {
	var conds []metav1.Condition

	MarkTrue(&conds, canary.ConditionValidated, "ConfigAccepted", "planned 4 traffic steps")
	if len(conds) != 1 {
		t.Fatalf("conditions = %d, want 1", len(conds))
	}
	if !IsTrue(conds, canary.ConditionValidated) {
		t.Fatal("Validated condition not true")
	}

	MarkFalse(&conds, canary.ConditionValidated, "ConfigRejected", "bad plan")
	if len(conds) != 1 {
		t.Fatalf("conditions = %d after update, want 1", len(conds))
	}
	if IsTrue(conds, canary.ConditionValidated) {
		t.Fatal("Validated condition still true after MarkFalse")
	}
	if conds[0].Reason != "ConfigRejected" {
		t.Fatalf("reason = %q, want ConfigRejected", conds[0].Reason)
	}
}

func TestSetConditionPreservesTransitionTimeWhenStatusUnchanged(t *testing.T) {
	var conds []metav1.Condition
	MarkTrue(&conds, canary.ConditionHealthGate, "StepPassed", "step 1 passed")

	old := metav1.NewTime(time.Now().Add(-time.Hour))
	conds[0].LastTransitionTime = old

	MarkTrue(&conds, canary.ConditionHealthGate, "StepPassed", "step 2 passed")
	if !conds[0].LastTransitionTime.Equal(&old) {
		t.Fatal("LastTransitionTime changed without a status change")
	}
	if conds[0].Message != "step 2 passed" {
		t.Fatalf("message = %q, want updated message", conds[0].Message)
	}

	MarkFalse(&conds, canary.ConditionHealthGate, "RollbackInitiated", "error rate")
	if conds[0].LastTransitionTime.Equal(&old) {
		t.Fatal("LastTransitionTime not updated on status change")
	}
}

func TestFindConditionMissing(t *testing.T) {
	var conds []metav1.Condition
	MarkTrue(&conds, canary.ConditionStarted, "RolloutStarted", "step 1 running")

	if c := FindCondition(conds, canary.ConditionPromoted); c != nil {
		t.Fatalf("found unexpected condition: %+v", c)
	}
	if IsTrue(conds, canary.ConditionPromoted) {
		t.Fatal("missing condition reported true")
	}
}
