package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"persian-connect/internal/market"
)

type adRequest struct {
	Title              string             `json:"title"`
	TitlePersian       string             `json:"titlePersian"`
	Description        string             `json:"description"`
	DescriptionPersian string             `json:"descriptionPersian"`
	Price              float64            `json:"price"`
	PriceType          market.PriceType   `json:"priceType"`
	Currency           string             `json:"currency"`
	Category           string             `json:"category"`
	Subcategory        string             `json:"subcategory"`
	Location           market.Location    `json:"location"`
	Images             []string           `json:"images"`
	Urgent             bool               `json:"urgent"`
	ContactInfo        market.ContactInfo `json:"contactInfo"`
	Condition          string             `json:"condition"`
	Brand              string             `json:"brand"`
	Model              string             `json:"model"`
	Specs              map[string]string  `json:"specs"`
}

type adPatch struct {
	Title              *string             `json:"title"`
	TitlePersian       *string             `json:"titlePersian"`
	Description        *string             `json:"description"`
	DescriptionPersian *string             `json:"descriptionPersian"`
	Price              *float64            `json:"price"`
	PriceType          *market.PriceType   `json:"priceType"`
	Currency           *string             `json:"currency"`
	Category           *string             `json:"category"`
	Subcategory        *string             `json:"subcategory"`
	Location           *market.Location    `json:"location"`
	Images             []string            `json:"images"`
	Urgent             *bool               `json:"urgent"`
	ContactInfo        *market.ContactInfo `json:"contactInfo"`
	Condition          *string             `json:"condition"`
	Brand              *string             `json:"brand"`
	Model              *string             `json:"model"`
	Specs              map[string]string   `json:"specs"`
}

func parseFilters(r *http.Request) (market.AdFilters, error) {
	q := r.URL.Query()
	f := market.AdFilters{
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Location:    q.Get("location"),
		Search:      q.Get("search"),
	}
	for key, dest := range map[string]**float64{"minPrice": &f.MinPrice, "maxPrice": &f.MaxPrice} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return market.AdFilters{}, fmt.Errorf("%s must be a number", key)
		}
		*dest = &v
	}
	if raw := q.Get("featured"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return market.AdFilters{}, fmt.Errorf("featured must be a boolean")
		}
		f.FeaturedOnly = v
	}
	return f, nil
}

func (s *Server) listAds(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	f, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, st.GetApprovedAds(f))
}

func (s *Server) featuredAds(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	writeJSON(w, st.GetRotatedFeaturedAds(r.URL.Query().Get("category")))
}

func (s *Server) categoryAds(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	writeJSON(w, st.GetAdsByCategory(r.PathValue("category")))
}

// getAd serves public ads to anyone and unpublished ads to their owner and admins. Views are
// counted for everyone but the owner.
func (s *Server) getAd(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	id := r.PathValue("id")
	ad, found := st.GetAd(id)
	u, signedIn := currentUser(r.Context())
	privileged := signedIn && (u.ID == ad.UserID || u.IsAdmin())
	visible := st.IsPublic(ad)
	if !found || (!visible && !privileged) {
		writeError(w, http.StatusNotFound, "ad not found")
		return
	}
	if visible && (!signedIn || u.ID != ad.UserID) {
		if err := st.IncrementViews(r.Context(), id); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		ad.Views++
	}
	writeJSON(w, ad)
}

func (s *Server) createAd(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req adRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, _ := currentUser(r.Context())
	ad, err := st.CreateAd(r.Context(), market.NewAd{
		Title:              req.Title,
		TitlePersian:       req.TitlePersian,
		Description:        req.Description,
		DescriptionPersian: req.DescriptionPersian,
		Price:              req.Price,
		PriceType:          req.PriceType,
		Currency:           req.Currency,
		Category:           req.Category,
		Subcategory:        req.Subcategory,
		Location:           req.Location,
		Images:             req.Images,
		UserID:             u.ID,
		Urgent:             req.Urgent,
		ContactInfo:        req.ContactInfo,
		Condition:          req.Condition,
		Brand:              req.Brand,
		Model:              req.Model,
		Specs:              req.Specs,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, ad)
}

// ownedAd loads the ad named in the path when the caller owns it or is an admin.
func (s *Server) ownedAd(w http.ResponseWriter, r *http.Request, st *market.Store) (market.Ad, bool) {
	ad, found := st.GetAd(r.PathValue("id"))
	u, _ := currentUser(r.Context())
	if !found || (ad.UserID != u.ID && !u.IsAdmin()) {
		writeError(w, http.StatusNotFound, "ad not found")
		return market.Ad{}, false
	}
	return ad, true
}

func (s *Server) updateAd(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	ad, ok := s.ownedAd(w, r, st)
	if !ok {
		return
	}
	var p adPatch
	if !decodeBody(w, r, &p) {
		return
	}
	u, _ := currentUser(r.Context())
	updated, err := st.UpdateAd(r.Context(), ad.ID, market.AdUpdate{
		Title:              p.Title,
		TitlePersian:       p.TitlePersian,
		Description:        p.Description,
		DescriptionPersian: p.DescriptionPersian,
		Price:              p.Price,
		PriceType:          p.PriceType,
		Currency:           p.Currency,
		Category:           p.Category,
		Subcategory:        p.Subcategory,
		Location:           p.Location,
		Images:             p.Images,
		Urgent:             p.Urgent,
		ContactInfo:        p.ContactInfo,
		Condition:          p.Condition,
		Brand:              p.Brand,
		Model:              p.Model,
		Specs:              p.Specs,
		Resubmit:           !u.IsAdmin() && p.changesContent(),
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if ad.Status == market.StatusApproved && updated.Status == market.StatusPending {
		updated = s.remoderate(r, st, updated)
	}
	writeJSON(w, updated)
}

// changesContent reports whether the patch touches anything moderation looks at.
func (p adPatch) changesContent() bool {
	return p.Title != nil || p.TitlePersian != nil || p.Description != nil || p.DescriptionPersian != nil ||
		p.Images != nil || p.Category != nil || p.Subcategory != nil
}

// remoderate runs moderation on an edited ad. Without a moderator the ad waits for an admin.
func (s *Server) remoderate(r *http.Request, st *market.Store, ad market.Ad) market.Ad {
	moderated, err := st.ProcessAdModeration(r.Context(), ad.ID)
	switch {
	case errors.Is(err, market.ErrNoModerator):
		s.logger.Info("no moderator configured, edited ad left for manual review", "ad_id", ad.ID)
		return ad
	case err != nil:
		s.logger.Warn("moderation of edited ad failed", "ad_id", ad.ID, "error", err)
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("http").Inc()
		}
		return ad
	}
	return moderated
}

func (s *Server) deleteAd(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	ad, ok := s.ownedAd(w, r, st)
	if !ok {
		return
	}
	if err := st.DeleteAd(r.Context(), ad.ID); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	ad, found := st.GetAd(r.PathValue("id"))
	u, _ := currentUser(r.Context())
	if !found || ad.UserID != u.ID {
		writeError(w, http.StatusNotFound, "ad not found")
		return
	}
	if s.deps.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments unavailable")
		return
	}
	var req struct {
		Type market.PaymentType `json:"type"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = market.PaymentAdPosting
	}
	pay, err := s.deps.Payments.StartCheckout(r.Context(), u.ID, ad.ID, req.Type)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, pay)
}

func (s *Server) myAds(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	u, _ := currentUser(r.Context())
	writeJSON(w, st.GetUserAds(u.ID))
}

func (s *Server) myPayments(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	u, _ := currentUser(r.Context())
	writeJSON(w, st.GetUserPayments(u.ID))
}
