package market

import (
	"context"
	"fmt"
	"slices"
)

// NewPayment is the input to CreatePayment. The amount comes from the configured fees.
type NewPayment struct {
	UserID string
	AdID   string
	Type   PaymentType
}

// Fees returns the configured posting and boost prices.
func (s *Store) Fees() Fees {
	return s.fees
}

func (s *Store) feeFor(t PaymentType) (float64, error) {
	switch t {
	case PaymentAdPosting:
		return s.fees.AdPosting, nil
	case PaymentAdBoost:
		return s.fees.AdBoost, nil
	default:
		return 0, fmt.Errorf("payment type %q: %w", t, ErrInvalidInput)
	}
}

// CreatePayment opens a pending payment for an ad owned by the paying user.
func (s *Store) CreatePayment(ctx context.Context, in NewPayment) (Payment, error) {
	amount, err := s.feeFor(in.Type)
	if err != nil {
		return Payment{}, err
	}
	var created Payment
	err = s.mutate(ctx, "create_payment", func() ([]Event, error) {
		if s.userIndex(in.UserID) < 0 {
			return nil, notFound("user", in.UserID)
		}
		ai := s.adIndex(in.AdID)
		if ai < 0 {
			return nil, notFound("ad", in.AdID)
		}
		if s.ads[ai].UserID != in.UserID {
			return nil, fmt.Errorf("ad %s is not owned by %s: %w", in.AdID, in.UserID, ErrInvalidInput)
		}
		if in.Type == PaymentAdPosting && s.ads[ai].PaymentStatus == PaymentCompleted {
			return nil, fmt.Errorf("ad %s already paid: %w", in.AdID, ErrInvalidTransition)
		}
		created = Payment{
			ID:        newID(),
			UserID:    in.UserID,
			AdID:      in.AdID,
			Amount:    amount,
			Currency:  s.fees.Currency,
			Type:      in.Type,
			Status:    PaymentPending,
			CreatedAt: s.clock(),
		}
		s.payments = append(s.payments, created)
		return nil, nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.logger.Info("payment created", "payment_id", created.ID, "ad_id", created.AdID, "type", created.Type)
	return created.clone(), nil
}

// AttachPaymentSession stores the gateway session of a pending payment.
func (s *Store) AttachPaymentSession(ctx context.Context, id, sessionID, checkoutURL string) (Payment, error) {
	var updated Payment
	err := s.mutate(ctx, "attach_payment_session", func() ([]Event, error) {
		idx := s.paymentIndex(id)
		if idx < 0 {
			return nil, notFound("payment", id)
		}
		p := &s.payments[idx]
		if p.Status != PaymentPending {
			return nil, fmt.Errorf("payment %s is %s: %w", id, p.Status, ErrInvalidTransition)
		}
		p.SessionID = sessionID
		p.CheckoutURL = checkoutURL
		updated = p.clone()
		return nil, nil
	})
	return updated, err
}

// CompletePayment settles a pending payment. A posting payment marks the ad paid; a boost
// payment features the ad. Completing an already completed payment is a no-op.
func (s *Store) CompletePayment(ctx context.Context, id string) (Payment, error) {
	var (
		done    Payment
		already bool
	)
	err := s.mutate(ctx, "complete_payment", func() ([]Event, error) {
		idx := s.paymentIndex(id)
		if idx < 0 {
			return nil, notFound("payment", id)
		}
		p := &s.payments[idx]
		switch p.Status {
		case PaymentCompleted:
			done, already = p.clone(), true
			return nil, errUnchanged
		case PaymentFailed:
			return nil, fmt.Errorf("payment %s already failed: %w", id, ErrInvalidTransition)
		}

		now := s.clock()
		p.Status = PaymentCompleted
		p.CompletedAt = timePtr(now)
		done = p.clone()
		events := []Event{PaymentCompletedEvent{Payment: done.clone()}}

		ai := s.adIndex(p.AdID)
		if ai < 0 {
			s.logger.Warn("completed payment for missing ad", "payment_id", id, "ad_id", p.AdID)
			return events, nil
		}
		switch p.Type {
		case PaymentAdPosting:
			a := &s.ads[ai]
			a.PaymentStatus = PaymentCompleted
			a.PaymentID = p.ID
			a.UpdatedAt = now
			events = append(events, AdUpdated{Ad: a.clone()})
		case PaymentAdBoost:
			events = append(events, AdBoosted{Ad: s.boostLocked(ai)})
		}
		return events, nil
	})
	if err != nil {
		return Payment{}, err
	}
	if !already {
		s.logger.Info("payment completed", "payment_id", id, "ad_id", done.AdID, "type", done.Type)
	}
	return done, nil
}

// FailPayment marks a pending payment failed. A failed posting payment marks the ad failed too.
func (s *Store) FailPayment(ctx context.Context, id string) (Payment, error) {
	var failed Payment
	err := s.mutate(ctx, "fail_payment", func() ([]Event, error) {
		idx := s.paymentIndex(id)
		if idx < 0 {
			return nil, notFound("payment", id)
		}
		p := &s.payments[idx]
		switch p.Status {
		case PaymentFailed:
			failed = p.clone()
			return nil, errUnchanged
		case PaymentCompleted:
			return nil, fmt.Errorf("payment %s already completed: %w", id, ErrInvalidTransition)
		}
		p.Status = PaymentFailed
		failed = p.clone()
		events := []Event{PaymentFailedEvent{Payment: failed.clone()}}

		if ai := s.adIndex(p.AdID); ai >= 0 && p.Type == PaymentAdPosting {
			a := &s.ads[ai]
			a.PaymentStatus = PaymentFailed
			a.UpdatedAt = s.clock()
			events = append(events, AdUpdated{Ad: a.clone()})
		}
		return events, nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.logger.Info("payment failed", "payment_id", id, "ad_id", failed.AdID)
	return failed, nil
}

// GetPayment returns the payment with id.
func (s *Store) GetPayment(id string) (Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.paymentIndex(id); idx >= 0 {
		return s.payments[idx].clone(), true
	}
	return Payment{}, false
}

// GetPaymentBySession finds a payment by its gateway session id.
func (s *Store) GetPaymentBySession(sessionID string) (Payment, bool) {
	if sessionID == "" {
		return Payment{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.payments {
		if s.payments[i].SessionID == sessionID {
			return s.payments[i].clone(), true
		}
	}
	return Payment{}, false
}

// GetUserPayments returns the payments of userID, newest first.
func (s *Store) GetUserPayments(userID string) []Payment {
	s.mu.RLock()
	out := make([]Payment, 0)
	for i := range s.payments {
		if s.payments[i].UserID == userID {
			out = append(out, s.payments[i].clone())
		}
	}
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b Payment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}
