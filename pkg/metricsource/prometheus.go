package metricsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apollo/canaria/pkg/canary"
)

// Query placeholders substituted before execution.
const (
	placeholderDeployment = "$deployment"
	placeholderNamespace  = "$namespace"
)

// Queries holds the PromQL used to observe both sides of the rollout.
// Each query must return a single instant value; empty queries yield zero.
type Queries struct {
	CanaryErrorRate string
	StableErrorRate string
	CanaryLatencyMs string
	StableLatencyMs string
}

// Prometheus samples error rates and latencies from a Prometheus HTTP API.
// Pod counts are not populated; pair with a pods source via Composite.
type Prometheus struct {
	BaseURL    string
	Queries    Queries
	HTTPClient *http.Client
}

// NewPrometheus constructs a source against the given base URL.
func NewPrometheus(baseURL string, queries Queries) *Prometheus {
	return &Prometheus{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Queries:    queries,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Prometheus) Sample(ctx context.Context, d *canary.Deployment, _ canary.Step) (*canary.MetricsSnapshot, error) {
	sub := strings.NewReplacer(
		placeholderDeployment, d.Workload.Name,
		placeholderNamespace, d.Workload.Namespace,
	)

	snap := &canary.MetricsSnapshot{}
	for _, q := range []struct {
		expr string
		dst  *float64
	}{
		{p.Queries.CanaryErrorRate, &snap.CanaryErrorRate},
		{p.Queries.StableErrorRate, &snap.StableErrorRate},
		{p.Queries.CanaryLatencyMs, &snap.CanaryAvgLatencyMs},
		{p.Queries.StableLatencyMs, &snap.StableAvgLatencyMs},
	} {
		if q.expr == "" {
			continue
		}
		val, err := p.query(ctx, sub.Replace(q.expr))
		if err != nil {
			return nil, err
		}
		*q.dst = val
	}
	return snap, nil
}

func (p *Prometheus) query(ctx context.Context, expr string) (float64, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("prometheus url: %w", err)
	}
	u.Path = "/api/v1/query"
	qs := url.Values{}
	qs.Set("query", expr)
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("prometheus query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("prometheus query: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
		Data   struct {
			Result []struct {
				Value [2]any `json:"value"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("prometheus response: %w", err)
	}
	if payload.Status != "success" || len(payload.Data.Result) == 0 {
		return 0, fmt.Errorf("prometheus query returned no data")
	}
	strv, _ := payload.Data.Result[0].Value[1].(string)
	v, err := strconv.ParseFloat(strv, 64)
	if err != nil {
		return 0, fmt.Errorf("prometheus value %q: %w", strv, err)
	}
	return v, nil
}
