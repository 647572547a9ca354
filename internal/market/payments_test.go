package market

import (
	"context"
	"errors"
	"testing"
)

func TestPostingPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t, WithFees(Fees{AdPosting: 7.5, AdBoost: 12, Currency: "CAD"}))
	seller := mustRegister(t, s, "seller@example.com")
	ad := mustCreateAd(t, s, seller, NewAd{})

	p, err := s.CreatePayment(ctx, NewPayment{UserID: seller.ID, AdID: ad.ID, Type: PaymentAdPosting})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if p.Amount != 7.5 || p.Currency != "CAD" || p.Status != PaymentPending {
		t.Fatalf("unexpected payment %+v", p)
	}

	if _, err := s.AttachPaymentSession(ctx, p.ID, "sess-1", "https://pay.example/sess-1"); err != nil {
		t.Fatalf("attach session: %v", err)
	}
	if got, ok := s.GetPaymentBySession("sess-1"); !ok || got.ID != p.ID {
		t.Fatal("payment not found by session")
	}

	done, err := s.CompletePayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != PaymentCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completed payment %+v", done)
	}
	got, _ := s.GetAd(ad.ID)
	if got.PaymentStatus != PaymentCompleted || got.PaymentID != p.ID {
		t.Fatalf("ad payment = %s/%s", got.PaymentStatus, got.PaymentID)
	}

	if _, err := s.CompletePayment(ctx, p.ID); err != nil {
		t.Fatalf("completing twice should be a no-op: %v", err)
	}
	if _, err := s.FailPayment(ctx, p.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("fail after complete: error = %v, want ErrInvalidTransition", err)
	}
	if _, err := s.CreatePayment(ctx, NewPayment{UserID: seller.ID, AdID: ad.ID, Type: PaymentAdPosting}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second posting fee: error = %v, want ErrInvalidTransition", err)
	}
	if list := s.GetUserPayments(seller.ID); len(list) != 1 {
		t.Fatalf("user payments = %d, want 1", len(list))
	}
}

func TestBoostPaymentFeaturesAd(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	ad := publish(t, s, mustCreateAd(t, s, seller, NewAd{}))

	p, err := s.CreatePayment(ctx, NewPayment{UserID: seller.ID, AdID: ad.ID, Type: PaymentAdBoost})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Amount != DefaultFees.AdBoost {
		t.Fatalf("amount = %v, want %v", p.Amount, DefaultFees.AdBoost)
	}
	if _, err := s.CompletePayment(ctx, p.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got, _ := s.GetAd(ad.ID); !got.Featured || got.FeaturedUntil == nil {
		t.Fatal("boost payment must feature the ad")
	}
}

func TestFailedPostingPaymentMarksAd(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	ad := mustCreateAd(t, s, seller, NewAd{})

	p, err := s.CreatePayment(ctx, NewPayment{UserID: seller.ID, AdID: ad.ID, Type: PaymentAdPosting})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.FailPayment(ctx, p.ID); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if got, _ := s.GetAd(ad.ID); got.PaymentStatus != PaymentFailed {
		t.Fatalf("ad paymentStatus = %s, want failed", got.PaymentStatus)
	}
	if _, err := s.CompletePayment(ctx, p.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete after fail: error = %v, want ErrInvalidTransition", err)
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setupTestStore(t)
	seller := mustRegister(t, s, "seller@example.com")
	stranger := mustRegister(t, s, "stranger@example.com")
	ad := mustCreateAd(t, s, seller, NewAd{})

	if _, err := s.CreatePayment(ctx, NewPayment{UserID: seller.ID, AdID: ad.ID, Type: "tip"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad type: error = %v, want ErrInvalidInput", err)
	}
	if _, err := s.CreatePayment(ctx, NewPayment{UserID: stranger.ID, AdID: ad.ID, Type: PaymentAdPosting}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("foreign ad: error = %v, want ErrInvalidInput", err)
	}
	if _, err := s.CreatePayment(ctx, NewPayment{UserID: seller.ID, AdID: "ghost", Type: PaymentAdPosting}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing ad: error = %v, want ErrNotFound", err)
	}
}

func TestSupportTickets(t *testing.T) {
	ctx := context.Background()
	s, _, clock := setupTestStore(t)
	u := mustRegister(t, s, "help@example.com")

	ticket, err := s.CreateSupportMessage(ctx, NewSupportMessage{UserID: u.ID, Subject: "Refund", Message: "Charged twice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != SupportOpen || ticket.Priority != PriorityMedium {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if _, err := s.CreateSupportMessage(ctx, NewSupportMessage{UserID: u.ID, Subject: "x", Message: "y", Priority: "urgent"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad priority: error = %v, want ErrInvalidInput", err)
	}

	clock.Advance(1)
	got, err := s.RespondToSupportMessage(ctx, ticket.ID, "admin-1", "Refunded", SupportResolved)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got.Status != SupportResolved || got.AdminID != "admin-1" || got.AdminResponse != "Refunded" {
		t.Fatalf("unexpected response %+v", got)
	}
	if list := s.GetUserSupportMessages(u.ID); len(list) != 1 || list[0].Status != SupportResolved {
		t.Fatalf("user tickets = %+v", list)
	}
	if len(s.GetSupportMessages()) != 1 {
		t.Fatal("expected one ticket overall")
	}
	if _, err := s.RespondToSupportMessage(ctx, "ghost", "admin-1", "x", SupportResolved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing ticket: error = %v, want ErrNotFound", err)
	}
}
