package market

import (
	"context"
	"fmt"
	"slices"
	"time"

	"persian-connect/internal/moderation"
)

// ProcessAdModeration runs the content moderator over a paid, pending ad and moves it to
// approved, under_review or rejected according to the verdict.
func (s *Store) ProcessAdModeration(ctx context.Context, id string) (Ad, error) {
	if s.moderator == nil {
		return Ad{}, ErrNoModerator
	}

	s.mu.RLock()
	idx := s.adIndex(id)
	var ad Ad
	if idx >= 0 {
		ad = s.ads[idx].clone()
	}
	s.mu.RUnlock()
	if idx < 0 {
		return Ad{}, notFound("ad", id)
	}
	if err := checkModeratable(ad); err != nil {
		return Ad{}, err
	}

	start := time.Now()
	res, err := s.moderator.Moderate(ctx, moderation.Request{
		Title:              ad.Title,
		TitlePersian:       ad.TitlePersian,
		Description:        ad.Description,
		DescriptionPersian: ad.DescriptionPersian,
		Images:             ad.Images,
		Category:           ad.Category,
		Price:              ad.Price,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("moderation").Inc()
		}
		return Ad{}, fmt.Errorf("moderate ad %s: %w", id, err)
	}
	if res == nil {
		return Ad{}, fmt.Errorf("moderate ad %s: empty result", id)
	}

	var moderated Ad
	err = s.mutate(ctx, "moderate_ad", func() ([]Event, error) {
		// The ad may have changed while the moderator was running.
		idx := s.adIndex(id)
		if idx < 0 {
			return nil, notFound("ad", id)
		}
		a := &s.ads[idx]
		if err := checkModeratable(*a); err != nil {
			return nil, err
		}
		now := s.clock()
		a.Moderation = &ModerationResult{
			AIScore:              res.Score,
			FlaggedContent:       nonNil(slices.Clone(res.FlaggedContent)),
			RequiresManualReview: res.RequiresManualReview,
			RejectionReason:      res.RejectionReason,
			ModeratedAt:          now,
		}
		switch {
		case res.RequiresManualReview:
			a.Status = StatusUnderReview
		case res.Approved:
			a.Status = StatusApproved
		default:
			a.Status = StatusRejected
		}
		a.UpdatedAt = now
		moderated = a.clone()
		return []Event{AdModerated{Ad: moderated.clone()}}, nil
	})
	if err != nil {
		return Ad{}, err
	}

	if s.metrics != nil {
		s.metrics.ModerationOutcomes.WithLabelValues("auto", string(moderated.Status)).Inc()
	}
	s.logger.Info("ad moderated",
		"ad_id", id,
		"status", moderated.Status,
		"score", res.Score,
		"flagged", len(res.FlaggedContent),
		"duration", time.Since(start),
	)
	return moderated, nil
}

func checkModeratable(a Ad) error {
	if a.PaymentStatus != PaymentCompleted {
		return fmt.Errorf("ad %s payment %s: %w", a.ID, a.PaymentStatus, ErrPaymentRequired)
	}
	if a.Status != StatusPending {
		return fmt.Errorf("moderate ad %s in status %s: %w", a.ID, a.Status, ErrInvalidTransition)
	}
	return nil
}

// AdminReviewAd records an admin's final decision on an ad that is pending or under review.
func (s *Store) AdminReviewAd(ctx context.Context, id string, decision AdStatus, adminID, reason string) (Ad, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return Ad{}, fmt.Errorf("review decision %q: %w", decision, ErrInvalidInput)
	}
	var reviewed Ad
	err := s.mutate(ctx, "review_ad", func() ([]Event, error) {
		idx := s.adIndex(id)
		if idx < 0 {
			return nil, notFound("ad", id)
		}
		a := &s.ads[idx]
		if a.Status != StatusPending && a.Status != StatusUnderReview {
			return nil, fmt.Errorf("review ad %s in status %s: %w", id, a.Status, ErrInvalidTransition)
		}
		now := s.clock()
		if a.Moderation == nil {
			a.Moderation = &ModerationResult{FlaggedContent: []string{}, ModeratedAt: now}
		}
		a.Moderation.ReviewedBy = adminID
		a.Moderation.ReviewedAt = timePtr(now)
		if decision == StatusRejected {
			a.Moderation.RejectionReason = reason
		} else {
			a.Moderation.RejectionReason = ""
		}
		a.Status = decision
		a.UpdatedAt = now
		reviewed = a.clone()
		return []Event{AdReviewed{Ad: reviewed.clone()}}, nil
	})
	if err != nil {
		return Ad{}, err
	}
	if s.metrics != nil {
		s.metrics.ModerationOutcomes.WithLabelValues("admin", string(decision)).Inc()
	}
	s.logger.Info("ad reviewed", "ad_id", id, "decision", decision, "admin_id", adminID)
	return reviewed, nil
}
