// Package client reads statistics and health from a running ratelog
// server over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// SiteCounts holds the counters of one log site.
type SiteCounts struct {
	Emitted    int64 `json:"emitted"`
	Suppressed int64 `json:"suppressed"`
}

// Stats is the response of the /stats endpoint.
type Stats struct {
	Emitted    int64                 `json:"emitted"`
	Suppressed int64                 `json:"suppressed"`
	Unlimited  int64                 `json:"unlimited"`
	Skipped    int64                 `json:"skipped"`
	Sites      map[string]SiteCounts `json:"sites,omitempty"`
}

// SuppressionRatio returns the share of rate limited statements that were
// suppressed, or 0 when none were limited.
func (s Stats) SuppressionRatio() float64 {
	total := s.Emitted + s.Suppressed
	if total == 0 {
		return 0
	}
	return float64(s.Suppressed) / float64(total)
}

// Health is the response of the /health endpoint.
type Health struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// Healthy reports whether the server considers itself healthy.
func (h Health) Healthy() bool { return h.Status == "healthy" }

// Client talks to a ratelog server.
type Client struct {
	serverAddr string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client.
// It reads configuration from RATELOG_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: envOrDefault("RATELOG_SERVER_ADDR", "http://127.0.0.1:9464"),
		timeout:    parseDurationEnv("RATELOG_TIMEOUT", 5*time.Second),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// ServerAddr returns the server base URL.
func (c *Client) ServerAddr() string { return c.serverAddr }

// Stats fetches the statement counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.doRequest(ctx, "/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health fetches the health report. An unhealthy server answers 503 with a
// report; that report is returned together with an *Error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	err := c.doRequest(ctx, "/health", &h)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && h.Status != "" {
		return &h, err
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// doRequest performs a GET request and decodes the JSON body into result.
// On a non-2xx status the body is still decoded when it is JSON.
func (c *Client) doRequest(ctx context.Context, path string, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("ratelog server unreachable", "server_addr", c.serverAddr, "error", err)
		return &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		_ = json.Unmarshal(body, result)
		return &Error{
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("server returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Try parsing as seconds (integer).
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
