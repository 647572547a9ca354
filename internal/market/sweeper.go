package market

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often RunSweeper expires ads when no interval is given.
const DefaultSweepInterval = time.Hour

// RunSweeper expires stale ads and ended featured placements once immediately and then every
// interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.logger.Info("sweeper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one cleanup pass.
func (s *Store) Sweep(ctx context.Context) {
	if _, err := s.CleanupExpiredAds(ctx); err != nil {
		s.logger.Error("cleanup expired ads failed", "error", err)
	}
	if _, err := s.CheckExpiredFeaturedAds(ctx); err != nil {
		s.logger.Error("featured expiry check failed", "error", err)
	}
}
