package canary

import (
	"strings"
	"testing"
)

func allOn() RollbackPolicy {
	return RollbackPolicy{AutoRollback: true, OnErrorRate: true, OnLatency: true, OnPodFailure: true}
}

func defaultThresholds() Thresholds {
	return Thresholds{ErrorRatePercent: 5, LatencyMs: 1000, SuccessRatePercent: 95, MinHealthyPods: 1}
}

func TestAnalyzeNilSampleIsInconclusive(t *testing.T) {
	v := Analyze(defaultThresholds(), allOn(), nil)
	if v.Result != AnalysisInconclusive {
		t.Fatalf("result = %q, want inconclusive", v.Result)
	}
	if v.Healthy || v.ShouldPromote || v.ShouldRollback {
		t.Fatalf("nil sample produced decision flags: %+v", v)
	}
	if len(v.Reasons) == 0 {
		t.Fatal("expected a reason explaining the missing sample")
	}
}

func TestAnalyzeHealthySamplePromotes(t *testing.T) {
	v := Analyze(defaultThresholds(), allOn(), &MetricsSnapshot{
		CanaryErrorRate:    1,
		CanaryAvgLatencyMs: 200,
		CanaryHealthyPods:  3,
		CanaryTotalPods:    3,
	})
	if !v.Healthy || !v.ShouldPromote || v.ShouldRollback {
		t.Fatalf("verdict = %+v, want healthy promote", v)
	}
	if v.Result != AnalysisHealthy {
		t.Fatalf("result = %q, want healthy", v.Result)
	}
	if len(v.Reasons) != 0 {
		t.Fatalf("healthy verdict carries reasons: %v", v.Reasons)
	}
}

func TestAnalyzeRollbackTriggers(t *testing.T) {
	cases := []struct {
		name    string
		sample  MetricsSnapshot
		trigger RollbackTrigger
		reason  string
	}{
		{
			name:    "error rate breach",
			sample:  MetricsSnapshot{CanaryErrorRate: 8, CanaryHealthyPods: 2},
			trigger: TriggerErrorRate,
			reason:  "error rate",
		},
		{
			name:    "latency breach",
			sample:  MetricsSnapshot{CanaryAvgLatencyMs: 2500, CanaryHealthyPods: 2},
			trigger: TriggerLatency,
			reason:  "latency",
		},
		{
			name:    "pod failure",
			sample:  MetricsSnapshot{CanaryHealthyPods: 0, CanaryTotalPods: 3},
			trigger: TriggerPodFailure,
			reason:  "healthy pods",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Analyze(defaultThresholds(), allOn(), &tc.sample)
			if !v.ShouldRollback {
				t.Fatalf("verdict = %+v, want rollback", v)
			}
			if v.Result != AnalysisUnhealthy {
				t.Fatalf("result = %q, want unhealthy", v.Result)
			}
			if v.Trigger != tc.trigger {
				t.Fatalf("trigger = %q, want %q", v.Trigger, tc.trigger)
			}
			if !strings.Contains(strings.Join(v.Reasons, ";"), tc.reason) {
				t.Fatalf("reasons %v do not mention %q", v.Reasons, tc.reason)
			}
		})
	}
}

func TestAnalyzeTriggerPrecedence(t *testing.T) {
	// All three dimensions breach at once; error rate wins, all reasons kept.
	v := Analyze(defaultThresholds(), allOn(), &MetricsSnapshot{
		CanaryErrorRate:    50,
		CanaryAvgLatencyMs: 5000,
		CanaryHealthyPods:  0,
		CanaryTotalPods:    3,
	})
	if v.Trigger != TriggerErrorRate {
		t.Fatalf("trigger = %q, want %q", v.Trigger, TriggerErrorRate)
	}
	if len(v.Reasons) != 3 {
		t.Fatalf("reasons = %v, want all three dimensions reported", v.Reasons)
	}
}

func TestAnalyzeDisabledPolicyDegradesWithoutRollback(t *testing.T) {
	p := RollbackPolicy{AutoRollback: false, OnErrorRate: true, OnLatency: true, OnPodFailure: true}
	v := Analyze(defaultThresholds(), p, &MetricsSnapshot{CanaryErrorRate: 8, CanaryHealthyPods: 2})
	if v.ShouldRollback {
		t.Fatalf("verdict = %+v, rollback fired with AutoRollback disabled", v)
	}
	if v.Result != AnalysisDegraded {
		t.Fatalf("result = %q, want degraded", v.Result)
	}
	if v.Trigger != "" {
		t.Fatalf("trigger = %q, want empty", v.Trigger)
	}
}

func TestAnalyzeSuccessRateGatesPromotion(t *testing.T) {
	// Within error threshold but below the promotion success rate: hold.
	th := Thresholds{ErrorRatePercent: 10, LatencyMs: 1000, SuccessRatePercent: 99, MinHealthyPods: 1}
	v := Analyze(th, allOn(), &MetricsSnapshot{CanaryErrorRate: 4, CanaryHealthyPods: 2})
	if !v.Healthy {
		t.Fatalf("verdict = %+v, want healthy", v)
	}
	if v.ShouldPromote {
		t.Fatal("promotion allowed below required success rate")
	}
	if v.Result != AnalysisInconclusive {
		t.Fatalf("result = %q, want inconclusive", v.Result)
	}
}
