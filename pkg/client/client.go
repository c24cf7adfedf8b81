// Package client is a small HTTP client for the bridge status API, used by
// the CLI subcommands and usable by embedders.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patze/bridge/internal/telemetry"
)

// Client communicates with a running bridge daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8088",
		Timeout: 10 * time.Second,
	}
}

// New creates a bridge API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Machines returns the machine identities the daemon is polling.
func (c *Client) Machines(ctx context.Context) ([]telemetry.MachineInfo, error) {
	var out []telemetry.MachineInfo
	if err := c.getJSON(ctx, c.baseURL+"/machines", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns per-machine working-set counts. machine narrows the result
// to one machine when non-empty.
func (c *Client) Status(ctx context.Context, machine string) ([]telemetry.Stats, error) {
	u := c.baseURL + "/status"
	if machine != "" {
		u += "?machine=" + url.QueryEscape(machine)
	}
	var out []telemetry.Stats
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentEvents returns up to limit of the latest envelopes, newest first.
func (c *Client) RecentEvents(ctx context.Context, limit int) ([]telemetry.Envelope, error) {
	u := c.baseURL + "/events/recent"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	var out []telemetry.Envelope
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "url", url, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("API error: %s", er.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
