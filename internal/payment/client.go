package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"persian-connect/internal/cache"
	"persian-connect/internal/metrics"
)

const (
	defaultStatusCacheTTL = time.Minute
	formContentType       = "application/x-www-form-urlencoded"
)

// Normalised session states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusUnknown   = "unknown"
)

var (
	// ErrInvalidCredential indicates the gateway rejected the configured API key.
	ErrInvalidCredential = errors.New("payment gateway invalid credential")
)

// Client talks to the hosted checkout gateway.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	successURL string
	cancelURL  string
	http       *http.Client
	metrics    *metrics.Metrics
	cache      *cache.Redis
	statusTTL  time.Duration
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	SuccessURL string
	CancelURL  string
}

// responseEnvelope is the gateway's standard response shape. Status and code arrive as
// booleans, numbers or strings depending on the endpoint.
type responseEnvelope struct {
	Status  bool
	Message string
	Code    int
	Data    json.RawMessage
}

func (r *responseEnvelope) UnmarshalJSON(data []byte) error {
	type alias struct {
		Status  json.RawMessage `json:"status"`
		Message json.RawMessage `json:"message"`
		Code    json.RawMessage `json:"code"`
		Data    json.RawMessage `json:"data"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	r.Message = strings.TrimSpace(trimQuotes(a.Message))
	r.Data = a.Data
	if len(a.Status) != 0 {
		var boolVal bool
		if err := json.Unmarshal(a.Status, &boolVal); err == nil {
			r.Status = boolVal
		} else {
			str := strings.TrimSpace(trimQuotes(a.Status))
			r.Status = strings.EqualFold(str, "true") || strings.EqualFold(str, "success") || str == "1"
		}
	}
	if len(a.Code) != 0 {
		var intVal int
		if err := json.Unmarshal(a.Code, &intVal); err == nil {
			r.Code = intVal
		} else if parsed, err := strconv.Atoi(strings.TrimSpace(trimQuotes(a.Code))); err == nil {
			r.Code = parsed
		}
	}
	return nil
}

// New creates a gateway client. redis may be nil to disable status caching.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics, redis *cache.Redis) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:     logger.With("component", "payment"),
		baseURL:    base,
		apiKey:     cfg.APIKey,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		http:       &http.Client{Timeout: timeout},
		metrics:    metrics,
		cache:      redis,
		statusTTL:  defaultStatusCacheTTL,
	}
}

// Enabled reports whether a gateway URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// CheckoutRequest describes one fee to collect. Reference is echoed back in webhooks.
type CheckoutRequest struct {
	Reference     string  `json:"reference"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Description   string  `json:"description"`
	CustomerEmail string  `json:"customer_email,omitempty"`
}

// CheckoutSession is a hosted payment page.
type CheckoutSession struct {
	ID        string         `json:"id"`
	Reference string         `json:"reference"`
	URL       string         `json:"url"`
	Status    string         `json:"status"`
	Amount    float64        `json:"amount"`
	Currency  string         `json:"currency"`
	ExpiresAt string         `json:"expires_at"`
	Raw       map[string]any `json:"raw"`
}

// CreateCheckout opens a checkout session.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("reference", req.Reference)
	form.Set("amount", strconv.FormatFloat(req.Amount, 'f', 2, 64))
	form.Set("currency", strings.ToUpper(req.Currency))
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	if c.successURL != "" {
		form.Set("success_url", c.successURL)
	}
	if c.cancelURL != "" {
		form.Set("cancel_url", c.cancelURL)
	}

	env, err := c.postForm(ctx, "/checkout/create", form)
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode checkout: %w", err)
	}
	session := parseSession(data)
	if session.ID == "" {
		return nil, fmt.Errorf("payment gateway returned checkout without session id")
	}
	if session.Reference == "" {
		session.Reference = req.Reference
	}
	if session.Status == StatusUnknown {
		session.Status = StatusPending
	}
	c.logger.Info("checkout session created", "session_id", session.ID, "reference", session.Reference)
	return session, nil
}

// SessionStatus returns the state of a checkout session. Settled states are cached in Redis
// when configured.
func (c *Client) SessionStatus(ctx context.Context, sessionID string, forceRefresh bool) (*CheckoutSession, error) {
	cacheKey := fmt.Sprintf("payment:session:%s", sessionID)
	if c.cache != nil && !forceRefresh {
		var cached CheckoutSession
		ok, err := c.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warn("read session cache failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	form := url.Values{}
	form.Set("id", sessionID)
	env, err := c.postForm(ctx, "/checkout/status", form)
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode session status: %w", err)
	}
	session := parseSession(data)
	if session.ID == "" {
		session.ID = sessionID
	}

	if c.cache != nil && session.Status != StatusPending && session.Status != StatusUnknown {
		if err := c.cache.SetJSON(ctx, cacheKey, session, c.statusTTL); err != nil {
			c.logger.Warn("set session cache failed", "error", err)
		}
	}
	return session, nil
}

func parseSession(data map[string]any) *CheckoutSession {
	return &CheckoutSession{
		ID:        firstString(data, "id", "session_id"),
		Reference: firstString(data, "reference", "ref_id", "reff_id"),
		URL:       firstString(data, "url", "checkout_url", "payment_url"),
		Status:    NormalizeStatus(firstString(data, "status", "state")),
		Amount:    firstFloat(data, "amount", "nominal"),
		Currency:  strings.ToUpper(firstString(data, "currency")),
		ExpiresAt: firstString(data, "expires_at", "expired_at"),
		Raw:       data,
	}
}

// NormalizeStatus maps gateway status strings onto pending, completed and failed.
func NormalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "null":
		return StatusUnknown
	case "success", "succeeded", "ok", "completed", "complete", "done", "paid", "settled":
		return StatusCompleted
	case "pending", "open", "process", "processing", "waiting", "awaiting", "unpaid":
		return StatusPending
	case "failed", "failure", "cancel", "canceled", "cancelled", "expired", "timeout", "void", "rejected", "declined":
		return StatusFailed
	default:
		return strings.ToLower(strings.TrimSpace(status))
	}
}

func (c *Client) postForm(ctx context.Context, endpoint string, values url.Values) (*responseEnvelope, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("payment gateway not configured")
	}
	var env responseEnvelope
	if err := c.do(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()), formContentType, &env); err != nil {
		return nil, err
	}
	if !env.Status {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = "payment gateway operation failed"
		}
		if env.Code != 0 {
			return nil, fmt.Errorf("payment %s error: %s (code=%d)", endpoint, message, env.Code)
		}
		return nil, fmt.Errorf("payment %s error: %s", endpoint, message)
	}
	return &env, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "persian-connect/payment-client")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.PaymentRequests.WithLabelValues(endpoint, "error").Inc()
		}
		return fmt.Errorf("payment request: %w", err)
	}
	defer res.Body.Close()

	statusLabel := strconv.Itoa(res.StatusCode)
	if c.metrics != nil {
		c.metrics.PaymentRequests.WithLabelValues(endpoint, statusLabel).Inc()
		c.metrics.PaymentLatency.WithLabelValues(endpoint, statusLabel).Observe(time.Since(start).Seconds())
	}

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return classifyHTTPError(res.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyHTTPError(status int, body string) error {
	snippet := strings.TrimSpace(body)
	lower := strings.ToLower(snippet)
	if status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid credential") {
		return fmt.Errorf("%w: %s", ErrInvalidCredential, snippet)
	}
	return fmt.Errorf("payment gateway error: status=%d body=%s", status, snippet)
}

func decodeMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if str := toString(val); str != "" {
				return str
			}
		}
	}
	return ""
}

func firstFloat(data map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			if f := toFloat(val); f != 0 {
				return f
			}
		}
	}
	return 0
}

func toString(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func toFloat(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func trimQuotes(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
