// Package admin is a small client for the cache administration endpoints of
// a running prepai server.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/prepai/prepai/pkg/models"
)

// Client talks to one prepai server.
type Client struct {
	rc *resty.Client
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(10 * time.Second)
	return &Client{rc: rc}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.rc.Close()
}

// CacheStats fetches the server's cache statistics.
func (c *Client) CacheStats(ctx context.Context) (models.CacheStatus, error) {
	var out models.CacheStatus
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/cache/stats")
	if err != nil {
		return out, fmt.Errorf("cache stats: %w", err)
	}
	if resp.IsError() {
		return out, fmt.Errorf("cache stats: server returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return out, nil
}

// ClearCache removes every cache entry and returns how many were dropped.
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	var out models.ClearResult
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Delete("/api/cache")
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("cache clear: server returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return out.Cleared, nil
}
