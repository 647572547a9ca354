package market

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// NewAd is the input to CreateAd.
type NewAd struct {
	Title              string
	TitlePersian       string
	Description        string
	DescriptionPersian string
	Price              float64
	PriceType          PriceType
	Currency           string
	Category           string
	Subcategory        string
	Location           Location
	Images             []string
	UserID             string
	Urgent             bool
	ContactInfo        ContactInfo
	Condition          string
	Brand              string
	Model              string
	Specs              map[string]string
}

// AdUpdate holds the fields UpdateAd may change. Nil fields are left untouched.
type AdUpdate struct {
	Title              *string
	TitlePersian       *string
	Description        *string
	DescriptionPersian *string
	Price              *float64
	PriceType          *PriceType
	Currency           *string
	Category           *string
	Subcategory        *string
	Location           *Location
	Images             []string
	Urgent             *bool
	ContactInfo        *ContactInfo
	Condition          *string
	Brand              *string
	Model              *string
	Specs              map[string]string
	PaymentStatus      *PaymentStatus
	// Resubmit sends an approved ad back to pending so it is moderated again. The payment is kept.
	Resubmit bool
}

// AdFilters narrows GetApprovedAds. Zero values do not filter.
type AdFilters struct {
	Category     string
	Subcategory  string
	Location     string
	Search       string
	MinPrice     *float64
	MaxPrice     *float64
	FeaturedOnly bool
}

// CreateAd stores a new listing. It starts pending on both status and payment and expires
// 30 days after creation.
func (s *Store) CreateAd(ctx context.Context, in NewAd) (Ad, error) {
	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(in.TitlePersian) == "" {
		return Ad{}, fmt.Errorf("ad title: %w", ErrInvalidInput)
	}
	if in.Price < 0 {
		return Ad{}, fmt.Errorf("ad price %v: %w", in.Price, ErrInvalidInput)
	}
	priceType := in.PriceType
	if priceType == "" {
		priceType = PriceFixed
	}
	currency := in.Currency
	if currency == "" {
		currency = s.fees.Currency
	}

	var created Ad
	err := s.mutate(ctx, "create_ad", func() ([]Event, error) {
		idx := s.userIndex(in.UserID)
		if idx < 0 {
			return nil, notFound("user", in.UserID)
		}
		now := s.clock()
		created = Ad{
			ID:                 newID(),
			Title:              in.Title,
			TitlePersian:       in.TitlePersian,
			Description:        in.Description,
			DescriptionPersian: in.DescriptionPersian,
			Price:              in.Price,
			PriceType:          priceType,
			Currency:           currency,
			Category:           in.Category,
			Subcategory:        in.Subcategory,
			Location:           in.Location,
			Images:             slices.Clone(in.Images),
			UserID:             in.UserID,
			UserName:           s.users[idx].DisplayName,
			Status:             StatusPending,
			Urgent:             in.Urgent,
			CreatedAt:          now,
			UpdatedAt:          now,
			ExpiresAt:          now.Add(adLifetime),
			ContactInfo:        in.ContactInfo,
			Condition:          in.Condition,
			Brand:              in.Brand,
			Model:              in.Model,
			Specs:              maps.Clone(in.Specs),
			PaymentStatus:      PaymentPending,
		}
		if created.Images == nil {
			created.Images = []string{}
		}
		s.ads = append(s.ads, created)
		return []Event{AdCreated{Ad: created.clone()}}, nil
	})
	if err != nil {
		return Ad{}, err
	}
	s.logger.Info("ad created", "ad_id", created.ID, "user_id", created.UserID, "category", created.Category)
	return created.clone(), nil
}

// GetAd returns the ad with id regardless of its status.
func (s *Store) GetAd(id string) (Ad, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.adIndex(id); idx >= 0 {
		return s.ads[idx].clone(), true
	}
	return Ad{}, false
}

// GetAds returns every ad, for admin views.
func (s *Store) GetAds() []Ad {
	return s.selectAds(func(Ad) bool { return true })
}

// GetUserAds returns the ads owned by userID, newest first.
func (s *Store) GetUserAds(userID string) []Ad {
	out := s.selectAds(func(a Ad) bool { return a.UserID == userID })
	slices.SortStableFunc(out, func(a, b Ad) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

// GetAdsByCategory returns the publicly visible ads of one category in listing order.
func (s *Store) GetAdsByCategory(category string) []Ad {
	return s.GetApprovedAds(AdFilters{Category: category})
}

// GetAdsForReview returns ads waiting on an admin decision, oldest first.
func (s *Store) GetAdsForReview() []Ad {
	out := s.selectAds(func(a Ad) bool { return a.Status == StatusUnderReview })
	slices.SortStableFunc(out, func(a, b Ad) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// IsPublic reports whether ad is visible in public listings at the store's current time.
func (s *Store) IsPublic(ad Ad) bool {
	return ad.Visible(s.clock())
}

// GetApprovedAds returns the publicly visible ads matching f. Featured ads come first, then
// urgent ones, then the newest.
func (s *Store) GetApprovedAds(f AdFilters) []Ad {
	now := s.clock()
	out := s.selectAds(func(a Ad) bool { return a.Visible(now) && f.match(a) })
	slices.SortStableFunc(out, compareListing)
	return out
}

func compareListing(a, b Ad) int {
	if c := compareFlag(a.Featured, b.Featured); c != 0 {
		return c
	}
	if c := compareFlag(a.Urgent, b.Urgent); c != 0 {
		return c
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}

// compareFlag orders true before false.
func compareFlag(a, b bool) int {
	return cmp.Compare(boolRank(b), boolRank(a))
}

func boolRank(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (f AdFilters) match(a Ad) bool {
	if f.Category != "" && !strings.EqualFold(a.Category, f.Category) {
		return false
	}
	if f.Subcategory != "" && !strings.EqualFold(a.Subcategory, f.Subcategory) {
		return false
	}
	if f.Location != "" && !strings.EqualFold(a.Location.Country, f.Location) && !strings.EqualFold(a.Location.City, f.Location) {
		return false
	}
	if f.MinPrice != nil && a.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && a.Price > *f.MaxPrice {
		return false
	}
	if f.FeaturedOnly && !a.Featured {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		fields := []string{a.Title, a.TitlePersian, a.Description, a.DescriptionPersian}
		return slices.ContainsFunc(fields, func(field string) bool {
			return strings.Contains(strings.ToLower(field), q)
		})
	}
	return true
}

func (s *Store) selectAds(keep func(Ad) bool) []Ad {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ad, 0, len(s.ads))
	for i := range s.ads {
		if keep(s.ads[i]) {
			out = append(out, s.ads[i].clone())
		}
	}
	return out
}

// IncrementViews bumps the view counter of an ad.
func (s *Store) IncrementViews(ctx context.Context, id string) error {
	return s.mutate(ctx, "increment_views", func() ([]Event, error) {
		idx := s.adIndex(id)
		if idx < 0 {
			return nil, notFound("ad", id)
		}
		s.ads[idx].Views++
		return nil, nil
	})
}

// UpdateAd merges the set fields of upd into the ad and refreshes updatedAt.
func (s *Store) UpdateAd(ctx context.Context, id string, upd AdUpdate) (Ad, error) {
	if upd.Price != nil && *upd.Price < 0 {
		return Ad{}, fmt.Errorf("ad price %v: %w", *upd.Price, ErrInvalidInput)
	}
	var updated Ad
	err := s.mutate(ctx, "update_ad", func() ([]Event, error) {
		idx := s.adIndex(id)
		if idx < 0 {
			return nil, notFound("ad", id)
		}
		a := &s.ads[idx]
		upd.apply(a)
		if upd.Resubmit && a.Status == StatusApproved {
			a.Status = StatusPending
			a.Moderation = nil
		}
		a.UpdatedAt = s.clock()
		updated = a.clone()
		return []Event{AdUpdated{Ad: updated.clone()}}, nil
	})
	return updated, err
}

func (u AdUpdate) apply(a *Ad) {
	setIf(&a.Title, u.Title)
	setIf(&a.TitlePersian, u.TitlePersian)
	setIf(&a.Description, u.Description)
	setIf(&a.DescriptionPersian, u.DescriptionPersian)
	setIf(&a.Price, u.Price)
	setIf(&a.PriceType, u.PriceType)
	setIf(&a.Currency, u.Currency)
	setIf(&a.Category, u.Category)
	setIf(&a.Subcategory, u.Subcategory)
	setIf(&a.Location, u.Location)
	setIf(&a.Urgent, u.Urgent)
	setIf(&a.ContactInfo, u.ContactInfo)
	setIf(&a.Condition, u.Condition)
	setIf(&a.Brand, u.Brand)
	setIf(&a.Model, u.Model)
	setIf(&a.PaymentStatus, u.PaymentStatus)
	if u.Images != nil {
		a.Images = slices.Clone(u.Images)
	}
	if u.Specs != nil {
		a.Specs = maps.Clone(u.Specs)
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// DeleteAd removes the ad and the messages and chats about it.
func (s *Store) DeleteAd(ctx context.Context, id string) error {
	err := s.mutate(ctx, "delete_ad", func() ([]Event, error) {
		idx := s.adIndex(id)
		if idx < 0 {
			return nil, notFound("ad", id)
		}
		s.ads = slices.Delete(s.ads, idx, idx+1)
		s.messages = slices.DeleteFunc(s.messages, func(m Message) bool { return m.AdID == id })
		s.chats = slices.DeleteFunc(s.chats, func(c Chat) bool { return c.AdID == id })
		return []Event{AdDeleted{AdID: id}}, nil
	})
	if err == nil {
		s.logger.Info("ad deleted", "ad_id", id)
	}
	return err
}

// BoostAd features the ad for the next seven days.
func (s *Store) BoostAd(ctx context.Context, id string) (Ad, error) {
	var boosted Ad
	err := s.mutate(ctx, "boost_ad", func() ([]Event, error) {
		idx := s.adIndex(id)
		if idx < 0 {
			return nil, notFound("ad", id)
		}
		boosted = s.boostLocked(idx)
		return []Event{AdBoosted{Ad: boosted.clone()}}, nil
	})
	return boosted, err
}

func (s *Store) boostLocked(idx int) Ad {
	now := s.clock()
	until := now.Add(boostDuration)
	a := &s.ads[idx]
	a.Featured = true
	a.FeaturedUntil = &until
	a.UpdatedAt = now
	return a.clone()
}

// CleanupExpiredAds marks every ad past its expiry as expired and returns how many changed.
// Rejected ads keep their status.
func (s *Store) CleanupExpiredAds(ctx context.Context) (int, error) {
	var expired []Ad
	err := s.mutate(ctx, "cleanup_expired_ads", func() ([]Event, error) {
		now := s.clock()
		for i := range s.ads {
			a := &s.ads[i]
			if a.Status == StatusExpired || a.Status == StatusRejected || now.Before(a.ExpiresAt) {
				continue
			}
			a.Status = StatusExpired
			a.UpdatedAt = now
			expired = append(expired, a.clone())
		}
		if len(expired) == 0 {
			return nil, errUnchanged
		}
		return []Event{AdsExpired{Ads: cloneAds(expired)}}, nil
	})
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		if s.metrics != nil {
			s.metrics.AdsExpired.Add(float64(len(expired)))
		}
		s.logger.Info("expired ads", "count", len(expired))
	}
	return len(expired), nil
}

func cloneAds(ads []Ad) []Ad {
	out := make([]Ad, len(ads))
	for i := range ads {
		out[i] = ads[i].clone()
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
