package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"persian-connect/internal/metrics"
)

// ErrUnauthorized indicates the moderation service rejected the API key.
var ErrUnauthorized = errors.New("moderation service unauthorized")

// Config holds moderation service client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls a remote content moderation service over JSON.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *metrics.Metrics
}

// NewClient creates a moderation service client.
func NewClient(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "moderation"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

// Moderate posts the request to /v1/moderate and decodes the verdict.
func (c *Client) Moderate(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal moderation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/moderate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "persian-connect/moderation-client")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		c.observe("error", start)
		return nil, fmt.Errorf("moderation request: %w", err)
	}
	defer res.Body.Close()
	c.observe(fmt.Sprintf("%d", res.StatusCode), start)

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(bodyBytes)))
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("moderation error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var result Result
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.FlaggedContent == nil {
		result.FlaggedContent = []string{}
	}
	return &result, nil
}

func (c *Client) observe(status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ModerationLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
