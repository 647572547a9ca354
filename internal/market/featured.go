package market

import (
	"context"
	"slices"
	"strings"
	"time"
)

const (
	featuredPageSize = 5
	rotationWindow   = 10 * time.Minute
)

// CheckExpiredFeaturedAds clears the featured flag of every ad whose featured period has ended
// and returns how many ads changed.
func (s *Store) CheckExpiredFeaturedAds(ctx context.Context) (int, error) {
	var events []Event
	err := s.mutate(ctx, "check_featured", func() ([]Event, error) {
		now := s.clock()
		for i := range s.ads {
			a := &s.ads[i]
			if a.FeaturedUntil == nil || a.FeaturedUntil.After(now) {
				continue
			}
			a.Featured = false
			a.FeaturedUntil = nil
			a.UpdatedAt = now
			events = append(events, AdFeaturedExpired{Ad: a.clone()})
		}
		if len(events) == 0 {
			return nil, errUnchanged
		}
		return events, nil
	})
	if err != nil {
		return 0, err
	}
	if n := len(events); n > 0 {
		if s.metrics != nil {
			s.metrics.FeaturedExpired.Add(float64(n))
		}
		s.logger.Info("featured placements ended", "count", n)
	}
	return len(events), nil
}

// GetRotatedFeaturedAds returns the featured ads to show right now. With more than five
// eligible ads it returns one page of five, and the page advances every ten minutes of wall
// clock so that every viewer sees the same page.
func (s *Store) GetRotatedFeaturedAds(category string) []Ad {
	now := s.clock()
	eligible := s.selectAds(func(a Ad) bool {
		if !a.Featured || a.Status != StatusApproved || !now.Before(a.ExpiresAt) {
			return false
		}
		if a.FeaturedUntil != nil && !a.FeaturedUntil.After(now) {
			return false
		}
		return category == "" || strings.EqualFold(a.Category, category)
	})
	if len(eligible) <= featuredPageSize {
		return eligible
	}

	pages := slices.Collect(slices.Chunk(eligible, featuredPageSize))
	window := now.UnixMilli() / rotationWindow.Milliseconds()
	page := int(window % int64(len(pages)))
	return pages[page]
}
