package httpserver

import (
	"context"
	"net/http"

	"persian-connect/internal/market"
)

func (s *Server) reviewQueue(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	writeJSON(w, st.GetAdsForReview())
}

func (s *Server) reviewAd(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req struct {
		Decision market.AdStatus `json:"decision"`
		Reason   string          `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	admin, _ := currentUser(r.Context())
	ad, err := st.AdminReviewAd(r.Context(), r.PathValue("id"), req.Decision, admin.ID, req.Reason)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, ad)
}

func (s *Server) moderateAd(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	ad, err := st.ProcessAdModeration(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, ad)
}

func (s *Server) boostAd(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	ad, err := st.BoostAd(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, ad)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	users := st.GetUsers()
	for i := range users {
		users[i] = publicUser(users[i])
	}
	writeJSON(w, users)
}

func (s *Server) blockUser(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req struct {
		Blocked bool `json:"blocked"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if admin, _ := currentUser(r.Context()); admin.ID == id {
		writeError(w, http.StatusBadRequest, "admins cannot block themselves")
		return
	}
	u, err := st.SetUserBlocked(r.Context(), id, req.Blocked)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, publicUser(u))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if admin, _ := currentUser(r.Context()); admin.ID == id {
		writeError(w, http.StatusBadRequest, "admins cannot delete themselves")
		return
	}
	if err := st.DeleteUser(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) allTickets(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	writeJSON(w, st.GetSupportMessages())
}

func (s *Server) respondTicket(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req struct {
		Response string               `json:"response"`
		Status   market.SupportStatus `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	admin, _ := currentUser(r.Context())
	ticket, err := st.RespondToSupportMessage(r.Context(), r.PathValue("id"), admin.ID, req.Response, req.Status)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, ticket)
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	writeJSON(w, st.GetAnalytics())
}

// sweep runs the expiry pass on demand. It is detached from the request so that a client
// disconnect does not interrupt it halfway.
func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	expired, err := st.CleanupExpiredAds(ctx)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	featured, err := st.CheckExpiredFeaturedAds(ctx)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"expiredAds": expired, "expiredFeatured": featured})
}
