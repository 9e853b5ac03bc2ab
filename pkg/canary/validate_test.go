package canary

import (
	"errors"
	"testing"
)

func validConfig() Config {
	return Config{
		Workload:      WorkloadRef{Name: "web", Namespace: "prod"},
		StableVersion: "v1.4.2",
		StableImage:   "registry.example.com/apps/web:v1.4.2",
		CanaryVersion: "v1.5.0",
		CanaryImage:   "registry.example.com/apps/web:v1.5.0",
		Plan:          TrafficPlan{InitialPercent: 10, TargetPercent: 100, IncrementPercent: 10, IncrementIntervalMinutes: 5},
		Thresholds:    Thresholds{ErrorRatePercent: 5, LatencyMs: 1000, SuccessRatePercent: 95, MinHealthyPods: 1},
		Policy:        RollbackPolicy{AutoRollback: true, OnErrorRate: true, OnLatency: true, OnPodFailure: true},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestApplyDefaultsTargetPercent(t *testing.T) {
	cfg := validConfig()
	cfg.Plan.TargetPercent = 0
	cfg.ApplyDefaults()
	if cfg.Plan.TargetPercent != 100 {
		t.Fatalf("TargetPercent = %d, want 100", cfg.Plan.TargetPercent)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing workload name", mutate: func(c *Config) { c.Workload.Name = "" }},
		{name: "missing canary image", mutate: func(c *Config) { c.CanaryImage = "" }},
		{name: "missing stable version", mutate: func(c *Config) { c.StableVersion = "" }},
		{name: "zero initial percent", mutate: func(c *Config) { c.Plan.InitialPercent = 0 }},
		{name: "zero increment", mutate: func(c *Config) { c.Plan.IncrementPercent = 0 }},
		{name: "initial above target", mutate: func(c *Config) { c.Plan.InitialPercent = 80; c.Plan.TargetPercent = 50 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("error %v is not ErrInvalidConfiguration", err)
			}
		})
	}
}
