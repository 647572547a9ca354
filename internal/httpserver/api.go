package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"persian-connect/internal/auth"
	"persian-connect/internal/handlers"
	"persian-connect/internal/market"
)

type ctxKey int

const userKey ctxKey = iota

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Public listings.
	mux.HandleFunc("GET /api/ads", s.listAds)
	mux.HandleFunc("GET /api/ads/featured", s.featuredAds)
	mux.HandleFunc("GET /api/ads/{id}", s.optionalUser(s.getAd))
	mux.HandleFunc("GET /api/categories/{category}/ads", s.categoryAds)
	mux.HandleFunc("GET /api/fees", s.fees)

	// Accounts.
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/me", s.requireUser(s.me))
	mux.HandleFunc("PATCH /api/me", s.requireUser(s.updateMe))
	mux.HandleFunc("POST /api/me/terms", s.requireUser(s.acceptTerms))
	mux.HandleFunc("GET /api/me/ads", s.requireUser(s.myAds))
	mux.HandleFunc("GET /api/me/payments", s.requireUser(s.myPayments))

	// Ad management.
	mux.HandleFunc("POST /api/ads", s.requireUser(s.createAd))
	mux.HandleFunc("PATCH /api/ads/{id}", s.requireUser(s.updateAd))
	mux.HandleFunc("DELETE /api/ads/{id}", s.requireUser(s.deleteAd))
	mux.HandleFunc("POST /api/ads/{id}/checkout", s.requireUser(s.checkout))

	// Messaging.
	mux.HandleFunc("POST /api/messages", s.requireUser(s.sendMessage))
	mux.HandleFunc("GET /api/messages/unread", s.requireUser(s.unreadCount))
	mux.HandleFunc("GET /api/chats", s.requireUser(s.listChats))
	mux.HandleFunc("GET /api/chats/{id}/messages", s.requireUser(s.chatMessages))
	mux.HandleFunc("POST /api/chats/{id}/read", s.requireUser(s.markRead))

	// Support.
	mux.HandleFunc("POST /api/support", s.requireUser(s.createTicket))
	mux.HandleFunc("GET /api/support", s.requireUser(s.myTickets))

	// Admin.
	mux.HandleFunc("GET /api/admin/ads/review", s.requireAdmin(s.reviewQueue))
	mux.HandleFunc("POST /api/admin/ads/{id}/review", s.requireAdmin(s.reviewAd))
	mux.HandleFunc("POST /api/admin/ads/{id}/moderate", s.requireAdmin(s.moderateAd))
	mux.HandleFunc("POST /api/admin/ads/{id}/boost", s.requireAdmin(s.boostAd))
	mux.HandleFunc("GET /api/admin/users", s.requireAdmin(s.listUsers))
	mux.HandleFunc("POST /api/admin/users/{id}/block", s.requireAdmin(s.blockUser))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.requireAdmin(s.deleteUser))
	mux.HandleFunc("GET /api/admin/support", s.requireAdmin(s.allTickets))
	mux.HandleFunc("POST /api/admin/support/{id}/respond", s.requireAdmin(s.respondTicket))
	mux.HandleFunc("GET /api/admin/analytics", s.requireAdmin(s.analytics))
	mux.HandleFunc("POST /api/admin/sweep", s.requireAdmin(s.sweep))
}

// currentUser returns the authenticated user set by requireUser or optionalUser.
func currentUser(ctx context.Context) (market.User, bool) {
	u, ok := ctx.Value(userKey).(market.User)
	return u, ok
}

func (s *Server) authenticate(r *http.Request) (market.User, int, error) {
	if s.deps.Store == nil || s.deps.Tokens == nil {
		return market.User{}, http.StatusServiceUnavailable, errors.New("api unavailable")
	}
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return market.User{}, http.StatusUnauthorized, errors.New("authorization header required")
	}
	claims, err := s.deps.Tokens.Verify(token)
	if err != nil {
		return market.User{}, http.StatusUnauthorized, errors.New("invalid or expired token")
	}
	// The store is the source of truth for role and block state, not the token.
	u, ok := s.deps.Store.GetUser(claims.UserID)
	if !ok {
		return market.User{}, http.StatusUnauthorized, errors.New("account no longer exists")
	}
	if u.IsBlocked {
		return market.User{}, http.StatusForbidden, market.ErrUserBlocked
	}
	return u, http.StatusOK, nil
}

func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, status, err := s.authenticate(r)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireUser(func(w http.ResponseWriter, r *http.Request) {
		if u, _ := currentUser(r.Context()); !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	})
}

// optionalUser attaches the caller when a valid token is present and otherwise serves the
// request anonymously.
func (s *Server) optionalUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			if u, _, err := s.authenticate(r); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userKey, u))
			}
		}
		next(w, r)
	}
}

func (s *Server) store(w http.ResponseWriter) (*market.Store, bool) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "api unavailable")
		return nil, false
	}
	return s.deps.Store, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store and payment errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrEmailTaken), errors.Is(err, market.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, market.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, market.ErrUserBlocked):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrPaymentRequired):
		status = http.StatusPaymentRequired
	case errors.Is(err, market.ErrNoModerator), errors.Is(err, handlers.ErrGatewayDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, handlers.ErrCheckoutFailed):
		s.logger.Warn("checkout failed", "error", err)
		writeError(w, http.StatusBadGateway, "payment gateway error")
		return
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if s.metrics != nil {
			s.metrics.Errors.WithLabelValues("http").Inc()
		}
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func (s *Server) fees(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	f := st.Fees()
	writeJSON(w, map[string]any{"adPosting": f.AdPosting, "adBoost": f.AdBoost, "currency": f.Currency})
}
