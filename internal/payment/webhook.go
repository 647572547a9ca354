package payment

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"persian-connect/internal/metrics"
)

const maxWebhookBody = 1 << 20

// WebhookEvent contains metadata and payload from a gateway webhook.
type WebhookEvent struct {
	Type       string
	Headers    map[string]string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// WebhookProcessor handles verified gateway events.
type WebhookProcessor interface {
	HandlePaymentEvent(ctx context.Context, event WebhookEvent) error
}

// WebhookHandler verifies the gateway's credentials and forwards events.
// The gateway signs requests with basic auth whose username and password are compared
// against configured md5 digests.
type WebhookHandler struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	usernameMD5 string
	passwordMD5 string
	processor   WebhookProcessor
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(logger *slog.Logger, metrics *metrics.Metrics, usernameMD5, passwordMD5 string, processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{
		logger:      logger.With("component", "payment_webhook"),
		metrics:     metrics,
		usernameMD5: strings.ToLower(usernameMD5),
		passwordMD5: strings.ToLower(passwordMD5),
		processor:   processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.validateAuth(r); err != nil {
		h.countError("payment_webhook_auth")
		h.logger.Warn("rejected webhook", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.countError("payment_webhook")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	eventType := detectEventType(r.Header, body)
	headers := map[string]string{}
	for key, vals := range r.Header {
		if len(vals) > 0 && key != "Authorization" {
			headers[key] = vals[0]
		}
	}

	event := WebhookEvent{
		Type:       eventType,
		Headers:    headers,
		Payload:    body,
		ReceivedAt: time.Now(),
	}

	if h.processor != nil {
		if err := h.processor.HandlePaymentEvent(r.Context(), event); err != nil {
			h.logger.Error("failed processing webhook", "error", err, "event", eventType)
			h.countError("payment_webhook_process")
			http.Error(w, "failed to process", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *WebhookHandler) countError(component string) {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues(component).Inc()
	}
}

func (h *WebhookHandler) validateAuth(r *http.Request) error {
	if h.usernameMD5 == "" && h.passwordMD5 == "" {
		return fmt.Errorf("webhook credentials not configured")
	}
	username, password, ok := r.BasicAuth()
	if !ok {
		if h.validateSignatureHeader(r) {
			return nil
		}
		return fmt.Errorf("missing basic auth")
	}
	if !digestEqual(md5Hex(username), h.usernameMD5) {
		return fmt.Errorf("invalid username hash")
	}
	if !digestEqual(md5Hex(password), h.passwordMD5) {
		return fmt.Errorf("invalid password hash")
	}
	return nil
}

func (h *WebhookHandler) validateSignatureHeader(r *http.Request) bool {
	signature := strings.TrimSpace(r.Header.Get("X-Payment-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(r.Header.Get("X-Signature"))
	}
	if signature == "" || h.passwordMD5 == "" {
		return false
	}
	return digestEqual(strings.ToLower(signature), h.passwordMD5)
}

// digestEqual compares hex digests in constant time.
func digestEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func md5Hex(val string) string {
	sum := md5.Sum([]byte(val))
	return hex.EncodeToString(sum[:])
}

func detectEventType(header http.Header, body []byte) string {
	for _, key := range []string{"X-Payment-Event", "X-Event-Type", "X-Event"} {
		if val := header.Get(key); val != "" {
			return val
		}
	}

	var generic struct {
		Type      string `json:"type"`
		Event     string `json:"event"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(body, &generic); err == nil {
		switch {
		case generic.EventType != "":
			return generic.EventType
		case generic.Type != "":
			return generic.Type
		case generic.Event != "":
			return generic.Event
		}
	}
	return "unknown"
}

// SessionPayload is the session data carried by checkout webhooks.
type SessionPayload struct {
	SessionID string
	Reference string
	Status    string
	Amount    float64
}

// ParseSessionPayload extracts the session fields from a webhook body, which may carry them at
// the top level or under "data".
func ParseSessionPayload(body []byte) (SessionPayload, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return SessionPayload{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	raw := json.RawMessage(body)
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		raw = envelope.Data
	}
	data, err := decodeMap(raw)
	if err != nil {
		return SessionPayload{}, fmt.Errorf("decode webhook data: %w", err)
	}
	return SessionPayload{
		SessionID: firstString(data, "session_id", "id"),
		Reference: firstString(data, "reference", "ref_id", "reff_id"),
		Status:    NormalizeStatus(firstString(data, "status", "state")),
		Amount:    firstFloat(data, "amount", "nominal"),
	}, nil
}
