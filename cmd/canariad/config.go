package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration file, YAML-encoded.
type Config struct {
	// Addr is the gateway listen address.
	Addr string `yaml:"addr"`
	// AuthToken, when set, is required as a bearer token on API calls.
	AuthToken string `yaml:"authToken"`
	// DataDir is the Badger database directory. Empty means in-memory.
	DataDir string `yaml:"dataDir"`

	// Poll enables the background tick driver.
	Poll bool `yaml:"poll"`
	// PollIntervalSeconds is the poller cadence. Defaults to 30.
	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`

	// Kubernetes enables the in-cluster workload controller and pod-count
	// metrics source.
	Kubernetes bool `yaml:"kubernetes"`

	// ResolveImages verifies canary images against their registry at
	// creation time.
	ResolveImages bool `yaml:"resolveImages"`
	// PlainHTTPRegistries lists registry hosts reachable over plain HTTP.
	PlainHTTPRegistries []string `yaml:"plainHTTPRegistries"`

	Prometheus PrometheusConfig `yaml:"prometheus"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
}

// PrometheusConfig wires the Prometheus metrics source.
type PrometheusConfig struct {
	URL     string `yaml:"url"`
	Queries struct {
		CanaryErrorRate string `yaml:"canaryErrorRate"`
		StableErrorRate string `yaml:"stableErrorRate"`
		CanaryLatencyMs string `yaml:"canaryLatencyMs"`
		StableLatencyMs string `yaml:"stableLatencyMs"`
	} `yaml:"queries"`
}

// AdvisorConfig wires the verdict narrative advisor. The API key comes from
// the OPENAI_API_KEY environment variable, never from the file.
type AdvisorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// LoadConfig reads the YAML config at path. A missing path yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:                ":8080",
		PollIntervalSeconds: 30,
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 30
	}
	return cfg, nil
}
