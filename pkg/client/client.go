// Package client is a thin HTTP client for the canaria gateway API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apollo/canaria/pkg/canary"
)

type tickRequest struct {
	Sample *canary.MetricsSnapshot `json:"sample,omitempty"`
}

type rollbackRequest struct {
	InitiatedBy string `json:"initiatedBy"`
	Reason      string `json:"reason"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type approveRequest struct {
	ApprovedBy string `json:"approvedBy"`
}

// Client talks to the canaria gateway HTTP API.
type Client struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// New returns a client initialized with the base URL.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AuthToken:  strings.TrimSpace(token),
		HTTPClient: httpClient,
	}
}

// CreateRollout creates a new rollout from the given configuration.
func (c *Client) CreateRollout(ctx context.Context, cfg canary.Config) (*canary.Deployment, error) {
	var d canary.Deployment
	if err := c.do(ctx, http.MethodPost, "/v1/rollouts", cfg, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListRollouts lists all rollouts.
func (c *Client) ListRollouts(ctx context.Context) ([]canary.Deployment, error) {
	var ds []canary.Deployment
	if err := c.do(ctx, http.MethodGet, "/v1/rollouts", nil, &ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// GetRollout fetches a rollout by id.
func (c *Client) GetRollout(ctx context.Context, id string) (*canary.Deployment, error) {
	var d canary.Deployment
	if err := c.do(ctx, http.MethodGet, c.rolloutPath(id, ""), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteRollout deletes a rollout and its owned records.
func (c *Client) DeleteRollout(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.rolloutPath(id, ""), nil, nil)
}

// GetSteps returns the traffic schedule of a rollout.
func (c *Client) GetSteps(ctx context.Context, id string) ([]canary.Step, error) {
	var steps []canary.Step
	if err := c.do(ctx, http.MethodGet, c.rolloutPath(id, "steps"), nil, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// GetRollbacks returns the rollback history of a rollout.
func (c *Client) GetRollbacks(ctx context.Context, id string) ([]canary.RollbackRecord, error) {
	var recs []canary.RollbackRecord
	if err := c.do(ctx, http.MethodGet, c.rolloutPath(id, "rollbacks"), nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Start begins progression of a pending rollout.
func (c *Client) Start(ctx context.Context, id string) (*canary.Deployment, error) {
	return c.action(ctx, id, "start", nil)
}

// Tick runs one evaluation cycle, optionally with an inline sample.
func (c *Client) Tick(ctx context.Context, id string, sample *canary.MetricsSnapshot) (*canary.Deployment, error) {
	var payload any
	if sample != nil {
		payload = tickRequest{Sample: sample}
	}
	return c.action(ctx, id, "tick", payload)
}

// Pause suspends progression.
func (c *Client) Pause(ctx context.Context, id string) (*canary.Deployment, error) {
	return c.action(ctx, id, "pause", nil)
}

// Resume continues a paused rollout.
func (c *Client) Resume(ctx context.Context, id string) (*canary.Deployment, error) {
	return c.action(ctx, id, "resume", nil)
}

// Promote completes the current step immediately, bypassing health gates.
func (c *Client) Promote(ctx context.Context, id string) (*canary.Deployment, error) {
	return c.action(ctx, id, "promote", nil)
}

// Rollback initiates a manual rollback.
func (c *Client) Rollback(ctx context.Context, id, initiatedBy, reason string) (*canary.Deployment, error) {
	return c.action(ctx, id, "rollback", rollbackRequest{InitiatedBy: initiatedBy, Reason: reason})
}

// Cancel terminates a rollout.
func (c *Client) Cancel(ctx context.Context, id, reason string) (*canary.Deployment, error) {
	return c.action(ctx, id, "cancel", cancelRequest{Reason: reason})
}

// Approve records a manual promotion approval.
func (c *Client) Approve(ctx context.Context, id, approvedBy string) (*canary.Deployment, error) {
	return c.action(ctx, id, "approve", approveRequest{ApprovedBy: approvedBy})
}

func (c *Client) action(ctx context.Context, id, action string, payload any) (*canary.Deployment, error) {
	var d canary.Deployment
	if err := c.do(ctx, http.MethodPost, c.rolloutPath(id, action), payload, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) rolloutPath(id, action string) string {
	p := "/v1/rollouts/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("canaria gateway error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
