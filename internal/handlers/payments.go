// Package handlers connects the payment gateway to the marketplace store.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"persian-connect/internal/market"
	"persian-connect/internal/metrics"
	"persian-connect/internal/payment"
)

// PaymentStore is the part of market.Store used for payments.
type PaymentStore interface {
	GetUser(id string) (market.User, bool)
	GetAd(id string) (market.Ad, bool)
	CreatePayment(ctx context.Context, in market.NewPayment) (market.Payment, error)
	AttachPaymentSession(ctx context.Context, id, sessionID, checkoutURL string) (market.Payment, error)
	CompletePayment(ctx context.Context, id string) (market.Payment, error)
	FailPayment(ctx context.Context, id string) (market.Payment, error)
	GetPayment(id string) (market.Payment, bool)
	GetPaymentBySession(sessionID string) (market.Payment, bool)
	ProcessAdModeration(ctx context.Context, id string) (market.Ad, error)
}

// Gateway is the part of payment.Client used here.
type Gateway interface {
	Enabled() bool
	CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
	SessionStatus(ctx context.Context, sessionID string, forceRefresh bool) (*payment.CheckoutSession, error)
}

var (
	// ErrGatewayDisabled is returned by StartCheckout when no gateway is configured.
	ErrGatewayDisabled = errors.New("payment gateway not configured")
	// ErrCheckoutFailed wraps gateway errors while opening a checkout session.
	ErrCheckoutFailed = errors.New("checkout failed")
)

// Payments opens checkout sessions and applies gateway webhooks to the store.
type Payments struct {
	store   PaymentStore
	gateway Gateway
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPayments constructs the payment coordinator.
func NewPayments(store PaymentStore, gateway Gateway, metricsRegistry *metrics.Metrics, logger *slog.Logger) *Payments {
	return &Payments{
		store:   store,
		gateway: gateway,
		metrics: metricsRegistry,
		logger:  logger.With("component", "payments"),
	}
}

// StartCheckout records a pending payment and opens a hosted checkout for it.
func (p *Payments) StartCheckout(ctx context.Context, userID, adID string, kind market.PaymentType) (market.Payment, error) {
	if p.gateway == nil || !p.gateway.Enabled() {
		return market.Payment{}, ErrGatewayDisabled
	}
	pay, err := p.store.CreatePayment(ctx, market.NewPayment{UserID: userID, AdID: adID, Type: kind})
	if err != nil {
		return market.Payment{}, err
	}

	req := payment.CheckoutRequest{
		Reference:   pay.ID,
		Amount:      pay.Amount,
		Currency:    pay.Currency,
		Description: checkoutDescription(pay.Type, p.adTitle(adID)),
	}
	if u, ok := p.store.GetUser(userID); ok {
		req.CustomerEmail = u.Email
	}
	session, err := p.gateway.CreateCheckout(ctx, req)
	if err != nil {
		p.countError()
		if _, failErr := p.store.FailPayment(ctx, pay.ID); failErr != nil {
			p.logger.Warn("failed marking payment failed", "payment_id", pay.ID, "error", failErr)
		}
		return market.Payment{}, fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	return p.store.AttachPaymentSession(ctx, pay.ID, session.ID, session.URL)
}

func (p *Payments) adTitle(adID string) string {
	ad, ok := p.store.GetAd(adID)
	if !ok {
		return ""
	}
	if ad.Title != "" {
		return ad.Title
	}
	return ad.TitlePersian
}

func checkoutDescription(kind market.PaymentType, title string) string {
	label := "Ad posting fee"
	if kind == market.PaymentAdBoost {
		label = "Featured boost"
	}
	if title == "" {
		return label
	}
	return fmt.Sprintf("%s: %s", label, title)
}

// HandlePaymentEvent satisfies payment.WebhookProcessor.
func (p *Payments) HandlePaymentEvent(ctx context.Context, event payment.WebhookEvent) error {
	payload, err := payment.ParseSessionPayload(event.Payload)
	if err != nil {
		return err
	}
	pay, ok := p.lookup(payload)
	if !ok {
		p.logger.Warn("webhook for unknown payment", "event", event.Type, "session_id", payload.SessionID, "reference", payload.Reference)
		return nil
	}

	status := payload.Status
	if status == payment.StatusUnknown {
		status = statusFromEventType(event.Type)
	}
	// Webhooks are only trusted as a hint when the gateway can be asked directly.
	if p.gateway != nil && p.gateway.Enabled() && pay.SessionID != "" {
		session, err := p.gateway.SessionStatus(ctx, pay.SessionID, true)
		if err != nil {
			p.logger.Warn("session status check failed, using webhook status", "payment_id", pay.ID, "error", err)
		} else {
			status = session.Status
		}
	}

	logger := p.logger.With("payment_id", pay.ID, "event", event.Type, "status", status)
	switch status {
	case payment.StatusCompleted:
		done, err := p.store.CompletePayment(ctx, pay.ID)
		if err != nil {
			return fmt.Errorf("complete payment %s: %w", pay.ID, err)
		}
		logger.Info("payment completed via webhook")
		if done.Type == market.PaymentAdPosting {
			p.moderate(ctx, done.AdID)
		}
	case payment.StatusFailed:
		if _, err := p.store.FailPayment(ctx, pay.ID); err != nil {
			if errors.Is(err, market.ErrInvalidTransition) {
				logger.Warn("ignoring failure for settled payment")
				return nil
			}
			return fmt.Errorf("fail payment %s: %w", pay.ID, err)
		}
		logger.Info("payment failed via webhook")
	default:
		logger.Debug("payment still pending")
	}
	return nil
}

func (p *Payments) lookup(payload payment.SessionPayload) (market.Payment, bool) {
	if pay, ok := p.store.GetPaymentBySession(payload.SessionID); ok {
		return pay, true
	}
	if payload.Reference != "" {
		return p.store.GetPayment(payload.Reference)
	}
	return market.Payment{}, false
}

// moderate runs automated moderation once an ad's posting fee is paid. Failures leave the ad
// pending so an admin can still review it.
func (p *Payments) moderate(ctx context.Context, adID string) {
	ad, err := p.store.ProcessAdModeration(ctx, adID)
	switch {
	case errors.Is(err, market.ErrNoModerator):
		p.logger.Info("no moderator configured, ad left for manual review", "ad_id", adID)
	case errors.Is(err, market.ErrInvalidTransition):
		p.logger.Debug("ad already moderated", "ad_id", adID)
	case err != nil:
		p.countError()
		p.logger.Error("moderation failed", "ad_id", adID, "error", err)
	default:
		p.logger.Info("ad moderated", "ad_id", adID, "status", ad.Status)
	}
}

func statusFromEventType(eventType string) string {
	t := strings.ToLower(eventType)
	switch {
	case strings.Contains(t, "complete"), strings.Contains(t, "paid"), strings.Contains(t, "succeed"):
		return payment.StatusCompleted
	case strings.Contains(t, "fail"), strings.Contains(t, "expire"), strings.Contains(t, "cancel"):
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

func (p *Payments) countError() {
	if p.metrics != nil {
		p.metrics.Errors.WithLabelValues("payments").Inc()
	}
}
