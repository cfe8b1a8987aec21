// Package monitor registers deployed applications with the application
// monitoring service.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client registers applications with a monitor instance.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds monitor client configuration.
type Config struct {
	Timeout time.Duration
}

// NewClient creates a new monitor client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "monitor"),
	}
}

// RegisterApplication announces an application to the monitor listening at
// address (host[:port], or a full base URL).
func (c *Client) RegisterApplication(ctx context.Context, address, applicationID string) error {
	base := strings.TrimRight(address, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	target := base + "/dmon/v1/overlord/application/" + url.PathEscape(applicationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("application registration failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Info("application registered", "application_id", applicationID, "monitor", base)
	return nil
}
