package httpserver

import (
	"net/http"
	"time"

	"persian-connect/internal/market"
)

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      market.User `json:"user"`
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, status int, u market.User) {
	token, expires, err := s.deps.Tokens.Issue(u)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	u.PasswordHash = ""
	writeJSONStatus(w, status, sessionResponse{Token: token, ExpiresAt: expires, User: u})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok || s.deps.Tokens == nil {
		if ok {
			writeError(w, http.StatusServiceUnavailable, "api unavailable")
		}
		return
	}
	var req struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		Phone       string `json:"phone"`
		Avatar      string `json:"avatar"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	u, err := st.RegisterUser(r.Context(), market.NewUser{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Phone:       req.Phone,
		Avatar:      req.Avatar,
		Role:        market.RoleUser,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.issueSession(w, r, http.StatusCreated, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok || s.deps.Tokens == nil {
		if ok {
			writeError(w, http.StatusServiceUnavailable, "api unavailable")
		}
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := st.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.issueSession(w, r, http.StatusOK, u)
}

func publicUser(u market.User) market.User {
	u.PasswordHash = ""
	return u
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	writeJSON(w, publicUser(u))
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req struct {
		Username    *string `json:"username"`
		DisplayName *string `json:"displayName"`
		Avatar      *string `json:"avatar"`
		Phone       *string `json:"phone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	u, _ := currentUser(r.Context())
	updated, err := st.UpdateUser(r.Context(), u.ID, market.UserUpdate{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Avatar:      req.Avatar,
		Phone:       req.Phone,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, publicUser(updated))
}

func (s *Server) acceptTerms(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req struct {
		Version string `json:"version"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	u, _ := currentUser(r.Context())
	updated, err := st.AcceptTerms(r.Context(), u.ID, req.Version)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, publicUser(updated))
}

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	var req struct {
		Subject  string                 `json:"subject"`
		Message  string                 `json:"message"`
		Priority market.SupportPriority `json:"priority"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	u, _ := currentUser(r.Context())
	ticket, err := st.CreateSupportMessage(r.Context(), market.NewSupportMessage{
		UserID:   u.ID,
		Subject:  req.Subject,
		Message:  req.Message,
		Priority: req.Priority,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, ticket)
}

func (s *Server) myTickets(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w)
	if !ok {
		return
	}
	u, _ := currentUser(r.Context())
	writeJSON(w, st.GetUserSupportMessages(u.ID))
}
