package metricsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apollo/canaria/pkg/canary"
)

func promStub(t *testing.T, values map[string]float64) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		expr := r.URL.Query().Get("query")
		val, ok := values[expr]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data":   map[string]any{"result": []any{}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"result": []any{
					map[string]any{"value": []any{1717243200.0, formatFloat(val)}},
				},
			},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func formatFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func sampleDeployment() *canary.Deployment {
	return &canary.Deployment{
		ID: "dep-1",
		Config: canary.Config{
			Workload: canary.WorkloadRef{Name: "web", Namespace: "prod"},
		},
	}
}

func TestPrometheusSampleSubstitutesPlaceholders(t *testing.T) {
	ts := promStub(t, map[string]float64{
		`error_rate{deployment="web-canary",namespace="prod"}`:  2.5,
		`error_rate{deployment="web",namespace="prod"}`:         1.0,
		`latency_ms{deployment="web-canary",namespace="prod"}`:  310,
		`latency_ms{deployment="web",namespace="prod"}`:         280,
	})

	p := NewPrometheus(ts.URL, Queries{
		CanaryErrorRate: `error_rate{deployment="$deployment-canary",namespace="$namespace"}`,
		StableErrorRate: `error_rate{deployment="$deployment",namespace="$namespace"}`,
		CanaryLatencyMs: `latency_ms{deployment="$deployment-canary",namespace="$namespace"}`,
		StableLatencyMs: `latency_ms{deployment="$deployment",namespace="$namespace"}`,
	})

	snap, err := p.Sample(context.Background(), sampleDeployment(), canary.Step{Number: 1})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if snap.CanaryErrorRate != 2.5 {
		t.Errorf("CanaryErrorRate = %v, want 2.5", snap.CanaryErrorRate)
	}
	if snap.StableErrorRate != 1.0 {
		t.Errorf("StableErrorRate = %v, want 1.0", snap.StableErrorRate)
	}
	if snap.CanaryAvgLatencyMs != 310 {
		t.Errorf("CanaryAvgLatencyMs = %v, want 310", snap.CanaryAvgLatencyMs)
	}
	if snap.StableAvgLatencyMs != 280 {
		t.Errorf("StableAvgLatencyMs = %v, want 280", snap.StableAvgLatencyMs)
	}
}

func TestPrometheusSampleSkipsEmptyQueries(t *testing.T) {
	ts := promStub(t, map[string]float64{"canary_errs": 3})

	p := NewPrometheus(ts.URL, Queries{CanaryErrorRate: "canary_errs"})
	snap, err := p.Sample(context.Background(), sampleDeployment(), canary.Step{Number: 1})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if snap.CanaryErrorRate != 3 {
		t.Errorf("CanaryErrorRate = %v, want 3", snap.CanaryErrorRate)
	}
	if snap.CanaryAvgLatencyMs != 0 {
		t.Errorf("CanaryAvgLatencyMs = %v, want 0 for unset query", snap.CanaryAvgLatencyMs)
	}
}

func TestPrometheusSampleFailsOnEmptyResult(t *testing.T) {
	ts := promStub(t, nil)

	p := NewPrometheus(ts.URL, Queries{CanaryErrorRate: "missing_metric"})
	if _, err := p.Sample(context.Background(), sampleDeployment(), canary.Step{Number: 1}); err == nil {
		t.Fatal("Sample = nil error, want failure on empty result")
	}
}

func TestCompositeMergesPodCounts(t *testing.T) {
	rates := Static{Snapshot: &canary.MetricsSnapshot{CanaryErrorRate: 2, CanaryAvgLatencyMs: 300}}
	pods := Static{Snapshot: &canary.MetricsSnapshot{CanaryHealthyPods: 2, CanaryTotalPods: 3}}

	snap, err := Composite{Rates: rates, Pods: pods}.Sample(context.Background(), sampleDeployment(), canary.Step{Number: 1})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if snap.CanaryErrorRate != 2 || snap.CanaryHealthyPods != 2 || snap.CanaryTotalPods != 3 {
		t.Fatalf("merged snapshot = %+v", snap)
	}
}
