package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"persian-connect/internal/market"
	"persian-connect/internal/moderation"
	"persian-connect/internal/payment"
	"persian-connect/internal/repo"
)

type fakeGateway struct {
	enabled    bool
	createErr  error
	status     string
	statusErr  error
	lastReq    payment.CheckoutRequest
	statusHits int
}

func (g *fakeGateway) Enabled() bool { return g.enabled }

func (g *fakeGateway) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.lastReq = req
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &payment.CheckoutSession{ID: "sess_" + req.Reference, URL: "https://pay.example/" + req.Reference, Status: payment.StatusPending}, nil
}

func (g *fakeGateway) SessionStatus(_ context.Context, sessionID string, _ bool) (*payment.CheckoutSession, error) {
	g.statusHits++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return &payment.CheckoutSession{ID: sessionID, Status: g.status}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T, opts ...market.Option) (*market.Store, market.User, market.Ad) {
	t.Helper()
	ctx := context.Background()
	store, err := market.New(ctx, repo.NewMemory(nil), opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	seller, err := store.RegisterUser(ctx, market.NewUser{Email: "seller@example.com", Password: "secret-pass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ad, err := store.CreateAd(ctx, market.NewAd{UserID: seller.ID, Title: "Samovar", Price: 40, Category: "home"})
	if err != nil {
		t.Fatalf("create ad: %v", err)
	}
	return store, seller, ad
}

func cleanModerator() market.Option {
	return market.WithModerator(moderation.Func(func(context.Context, moderation.Request) (*moderation.Result, error) {
		return &moderation.Result{Score: 0.1, Approved: true}, nil
	}))
}

func webhook(body string) payment.WebhookEvent {
	return payment.WebhookEvent{Type: "checkout.updated", Payload: []byte(body)}
}

func TestStartCheckoutAttachesSession(t *testing.T) {
	store, seller, ad := setup(t)
	gw := &fakeGateway{enabled: true}
	p := NewPayments(store, gw, nil, testLogger())

	pay, err := p.StartCheckout(context.Background(), seller.ID, ad.ID, market.PaymentAdPosting)
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	if pay.SessionID != "sess_"+pay.ID || pay.CheckoutURL == "" {
		t.Fatalf("session not attached: %+v", pay)
	}
	if gw.lastReq.Amount != 5 || gw.lastReq.CustomerEmail != "seller@example.com" {
		t.Fatalf("unexpected checkout request %+v", gw.lastReq)
	}
	if gw.lastReq.Description != "Ad posting fee: Samovar" {
		t.Fatalf("description = %q", gw.lastReq.Description)
	}
}

func TestStartCheckoutFailures(t *testing.T) {
	store, seller, ad := setup(t)

	_, err := NewPayments(store, &fakeGateway{}, nil, testLogger()).StartCheckout(context.Background(), seller.ID, ad.ID, market.PaymentAdPosting)
	if !errors.Is(err, ErrGatewayDisabled) {
		t.Fatalf("expected ErrGatewayDisabled, got %v", err)
	}

	gw := &fakeGateway{enabled: true, createErr: errors.New("gateway down")}
	_, err = NewPayments(store, gw, nil, testLogger()).StartCheckout(context.Background(), seller.ID, ad.ID, market.PaymentAdPosting)
	if !errors.Is(err, ErrCheckoutFailed) {
		t.Fatalf("expected ErrCheckoutFailed, got %v", err)
	}
	payments := store.GetUserPayments(seller.ID)
	if len(payments) != 1 || payments[0].Status != market.PaymentFailed {
		t.Fatalf("expected one failed payment, got %+v", payments)
	}
}

func TestWebhookCompletesPostingFeeAndModerates(t *testing.T) {
	store, seller, ad := setup(t, cleanModerator())
	gw := &fakeGateway{enabled: true, status: payment.StatusCompleted}
	p := NewPayments(store, gw, nil, testLogger())
	ctx := context.Background()

	pay, err := p.StartCheckout(ctx, seller.ID, ad.ID, market.PaymentAdPosting)
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	if err := p.HandlePaymentEvent(ctx, webhook(`{"data":{"id":"`+pay.SessionID+`","status":"paid"}}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gw.statusHits != 1 {
		t.Fatalf("expected the session to be verified once, got %d", gw.statusHits)
	}

	got, _ := store.GetAd(ad.ID)
	if got.PaymentStatus != market.PaymentCompleted || got.PaymentID != pay.ID {
		t.Fatalf("ad payment not recorded: %+v", got)
	}
	if got.Status != market.StatusApproved {
		t.Fatalf("expected approved after moderation, got %s", got.Status)
	}

	// A repeated delivery is harmless.
	if err := p.HandlePaymentEvent(ctx, webhook(`{"data":{"id":"`+pay.SessionID+`","status":"paid"}}`)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
}

func TestWebhookWithoutModeratorLeavesAdPending(t *testing.T) {
	store, seller, ad := setup(t)
	p := NewPayments(store, nil, nil, testLogger())
	ctx := context.Background()

	pay, err := store.CreatePayment(ctx, market.NewPayment{UserID: seller.ID, AdID: ad.ID, Type: market.PaymentAdPosting})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if err := p.HandlePaymentEvent(ctx, webhook(`{"reference":"`+pay.ID+`","status":"succeeded"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := store.GetAd(ad.ID)
	if got.PaymentStatus != market.PaymentCompleted || got.Status != market.StatusPending {
		t.Fatalf("unexpected ad state %s/%s", got.Status, got.PaymentStatus)
	}
}

func TestWebhookFailureAndBoost(t *testing.T) {
	store, seller, ad := setup(t)
	p := NewPayments(store, nil, nil, testLogger())
	ctx := context.Background()

	posting, _ := store.CreatePayment(ctx, market.NewPayment{UserID: seller.ID, AdID: ad.ID, Type: market.PaymentAdPosting})
	ev := payment.WebhookEvent{Type: "checkout.expired", Payload: []byte(`{"reference":"` + posting.ID + `"}`)}
	if err := p.HandlePaymentEvent(ctx, ev); err != nil {
		t.Fatalf("handle failure: %v", err)
	}
	if got, _ := store.GetPayment(posting.ID); got.Status != market.PaymentFailed {
		t.Fatalf("expected failed payment, got %s", got.Status)
	}

	boost, _ := store.CreatePayment(ctx, market.NewPayment{UserID: seller.ID, AdID: ad.ID, Type: market.PaymentAdBoost})
	if err := p.HandlePaymentEvent(ctx, webhook(`{"reference":"`+boost.ID+`","status":"completed"}`)); err != nil {
		t.Fatalf("handle boost: %v", err)
	}
	got, _ := store.GetAd(ad.ID)
	if !got.Featured || got.FeaturedUntil == nil {
		t.Fatalf("expected boosted ad, got %+v", got)
	}

	// A late failure for a completed payment is ignored.
	if err := p.HandlePaymentEvent(ctx, webhook(`{"reference":"`+boost.ID+`","status":"failed"}`)); err != nil {
		t.Fatalf("late failure: %v", err)
	}
}

func TestWebhookUnknownPaymentIsIgnored(t *testing.T) {
	store, _, _ := setup(t)
	p := NewPayments(store, nil, nil, testLogger())
	if err := p.HandlePaymentEvent(context.Background(), webhook(`{"id":"sess_missing","status":"paid"}`)); err != nil {
		t.Fatalf("expected unknown payment to be ignored, got %v", err)
	}
	if err := p.HandlePaymentEvent(context.Background(), webhook(`garbage`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestStatusFromEventType(t *testing.T) {
	for in, want := range map[string]string{
		"checkout.completed": payment.StatusCompleted,
		"invoice.paid":       payment.StatusCompleted,
		"checkout.expired":   payment.StatusFailed,
		"payment_failed":     payment.StatusFailed,
		"checkout.updated":   payment.StatusPending,
	} {
		if got := statusFromEventType(in); got != want {
			t.Errorf("statusFromEventType(%q) = %q, want %q", in, got, want)
		}
	}
}
