package megaplan

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

	"linkrelay/internal/config"
	"linkrelay/internal/observability"
	"linkrelay/internal/services"
)

const (
	serviceName  = "tracker"
	maxErrorBody = 4096
)

// HTTPDoer describes the HTTP client used by the tracker client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client updates task fields through the tracker REST API.
type Client struct {
	baseURL   string
	apiKey    string
	linkField string
	client    HTTPDoer
	metrics   *observability.Metrics
}

// NewClient constructs a tracker client. An empty linkField defaults to "subject".
func NewClient(baseURL, apiKey, linkField string, client HTTPDoer, metrics *observability.Metrics) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(linkField) == "" {
		linkField = "subject"
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		linkField: strings.TrimSpace(linkField),
		client:    client,
		metrics:   metrics,
	}
}

// NewConfiguredClient builds a client from configuration with the configured request timeout.
func NewConfiguredClient(cfg *config.Config, metrics *observability.Metrics) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	return NewClient(cfg.Tracker.URL, cfg.Tracker.APIKey, cfg.Tracker.LinkField, httpClient, metrics)
}

// SetLink writes value into the task's link field. A missing task yields an
// error matching services.ErrNotFound.
func (c *Client) SetLink(ctx context.Context, taskID, value string) error {
	body, err := json.Marshal(map[string]string{c.linkField: value})
	if err != nil {
		return fmt.Errorf("encode task update: %w", err)
	}
	endpoint := c.baseURL + "/api/v3/task/" + url.PathEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build task update request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveRemoteCall(serviceName, "task_update", "transport_error", time.Since(start))
		return services.Wrap(services.ErrTransient, serviceName, "task_update", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.metrics.ObserveRemoteCall(serviceName, "task_update", fmt.Sprintf("status_%d", resp.StatusCode), time.Since(start))
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &services.StatusError{
			Service:    serviceName,
			Operation:  "task_update",
			StatusCode: resp.StatusCode,
			Body:       string(payload),
		}
	}
	c.metrics.ObserveRemoteCall(serviceName, "task_update", "ok", time.Since(start))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

// Ping fetches the account bound to the API key. It fails when the key is
// rejected or the tracker is unreachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/currentUser", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveRemoteCall(serviceName, "ping", "transport_error", time.Since(start))
		return services.Wrap(services.ErrTransient, serviceName, "ping", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.metrics.ObserveRemoteCall(serviceName, "ping", fmt.Sprintf("status_%d", resp.StatusCode), time.Since(start))
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &services.StatusError{Service: serviceName, Operation: "ping", StatusCode: resp.StatusCode, Body: string(payload)}
	}
	c.metrics.ObserveRemoteCall(serviceName, "ping", "ok", time.Since(start))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}
