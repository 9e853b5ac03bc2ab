package canary

import "fmt"

// AnalysisResult summarizes a health evaluation.
type AnalysisResult string

const (
	AnalysisHealthy      AnalysisResult = "healthy"
	AnalysisDegraded     AnalysisResult = "degraded"
	AnalysisUnhealthy    AnalysisResult = "unhealthy"
	AnalysisInconclusive AnalysisResult = "inconclusive"
)

// MetricsSnapshot is one observation of canary and stable behavior, supplied
// by an external metrics source at tick time.
type MetricsSnapshot struct {
	CanaryErrorRate    float64 `json:"canaryErrorRate"`
	StableErrorRate    float64 `json:"stableErrorRate"`
	CanaryAvgLatencyMs float64 `json:"canaryAvgLatencyMs"`
	StableAvgLatencyMs float64 `json:"stableAvgLatencyMs"`
	CanaryHealthyPods  int     `json:"canaryHealthyPods"`
	CanaryTotalPods    int     `json:"canaryTotalPods"`
}

// Verdict is the outcome of analyzing one metrics snapshot against the
// deployment's thresholds.
type Verdict struct {
	Healthy        bool           `json:"healthy"`
	ShouldRollback bool           `json:"shouldRollback"`
	ShouldPromote  bool           `json:"shouldPromote"`
	Result         AnalysisResult `json:"result"`
	Reasons        []string       `json:"reasons,omitempty"`
	// Trigger is set to the first dimension that demanded a rollback.
	Trigger RollbackTrigger `json:"trigger,omitempty"`
	// Narrative is optional advisory text. Its absence never affects the
	// decision fields above.
	Narrative string `json:"narrative,omitempty"`
}

// Analyze evaluates a metrics snapshot against thresholds and rollback
// policy. Every dimension is checked independently; reasons accumulate
// rather than short-circuiting. A nil snapshot yields an inconclusive
// verdict, never a healthy one.
func Analyze(t Thresholds, p RollbackPolicy, sample *MetricsSnapshot) Verdict {
	v := Verdict{Result: AnalysisInconclusive}
	if sample == nil {
		v.Reasons = append(v.Reasons, "no metrics sample available")
		return v
	}

	if sample.CanaryErrorRate > t.ErrorRatePercent {
		v.Reasons = append(v.Reasons, fmt.Sprintf("error rate %.2f%% exceeds threshold %.2f%%", sample.CanaryErrorRate, t.ErrorRatePercent))
		if p.OnErrorRate && p.AutoRollback {
			v.ShouldRollback = true
			if v.Trigger == "" {
				v.Trigger = TriggerErrorRate
			}
		}
	}
	if sample.CanaryAvgLatencyMs > t.LatencyMs {
		v.Reasons = append(v.Reasons, fmt.Sprintf("average latency %.0fms exceeds threshold %.0fms", sample.CanaryAvgLatencyMs, t.LatencyMs))
		if p.OnLatency && p.AutoRollback {
			v.ShouldRollback = true
			if v.Trigger == "" {
				v.Trigger = TriggerLatency
			}
		}
	}
	if sample.CanaryHealthyPods < t.MinHealthyPods {
		v.Reasons = append(v.Reasons, fmt.Sprintf("healthy pods %d below minimum %d", sample.CanaryHealthyPods, t.MinHealthyPods))
		if p.OnPodFailure && p.AutoRollback {
			v.ShouldRollback = true
			if v.Trigger == "" {
				v.Trigger = TriggerPodFailure
			}
		}
	}

	v.Healthy = len(v.Reasons) == 0
	if v.Healthy && !v.ShouldRollback {
		// Promotion derives success rate from canary error rate only.
		// Pod counts are intentionally not re-checked here.
		v.ShouldPromote = (100 - sample.CanaryErrorRate) >= t.SuccessRatePercent
	}

	switch {
	case v.ShouldRollback:
		v.Result = AnalysisUnhealthy
	case v.Healthy && v.ShouldPromote:
		v.Result = AnalysisHealthy
	case !v.Healthy:
		v.Result = AnalysisDegraded
	default:
		v.Result = AnalysisInconclusive
	}
	return v
}
