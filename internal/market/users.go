package market

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// NewUser is the input to RegisterUser.
type NewUser struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	Phone       string
	Avatar      string
	Role        Role
}

// GoogleProfile is the identity returned by a Google sign-in.
type GoogleProfile struct {
	Email       string
	DisplayName string
	Avatar      string
}

// UserUpdate holds the profile fields a user may change. Nil fields are left untouched.
type UserUpdate struct {
	Username    *string
	DisplayName *string
	Avatar      *string
	Phone       *string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) userByEmail(email string) int {
	email = normalizeEmail(email)
	for i := range s.users {
		if normalizeEmail(s.users[i].Email) == email {
			return i
		}
	}
	return -1
}

// RegisterUser creates an email account. Emails are unique regardless of case.
func (s *Store) RegisterUser(ctx context.Context, in NewUser) (User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("email %q: %w", in.Email, ErrInvalidInput)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}

	var hash string
	if in.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}

	var created User
	err := s.mutate(ctx, "register_user", func() ([]Event, error) {
		if s.userByEmail(email) >= 0 {
			return nil, ErrEmailTaken
		}
		created = User{
			ID:           newID(),
			Username:     username,
			Email:        email,
			DisplayName:  firstNonEmpty(in.DisplayName, username),
			Role:         role,
			AuthProvider: ProviderEmail,
			CreatedAt:    s.clock(),
			Avatar:       in.Avatar,
			Phone:        in.Phone,
			PasswordHash: hash,
		}
		s.users = append(s.users, created)
		return []Event{UserRegistered{User: created.clone()}}, nil
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user registered", "user_id", created.ID)
	return created.clone(), nil
}

// AuthenticateUser checks the password of an email account.
func (s *Store) AuthenticateUser(email, password string) (User, error) {
	s.mu.RLock()
	idx := s.userByEmail(email)
	var u User
	if idx >= 0 {
		u = s.users[idx].clone()
	}
	s.mu.RUnlock()

	if idx < 0 || u.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("compare password: %w", err)
	}
	if u.IsBlocked {
		return User{}, ErrUserBlocked
	}
	return u, nil
}

// SignInWithGoogle returns the account for profile.Email, creating it on first sign-in.
func (s *Store) SignInWithGoogle(ctx context.Context, profile GoogleProfile) (User, error) {
	email := normalizeEmail(profile.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("email %q: %w", profile.Email, ErrInvalidInput)
	}

	var (
		u       User
		created bool
	)
	err := s.mutate(ctx, "google_sign_in", func() ([]Event, error) {
		if idx := s.userByEmail(email); idx >= 0 {
			u = s.users[idx].clone()
			return nil, errUnchanged
		}
		username := strings.SplitN(email, "@", 2)[0]
		u = User{
			ID:           newID(),
			Username:     username,
			Email:        email,
			DisplayName:  firstNonEmpty(profile.DisplayName, username),
			Role:         RoleUser,
			AuthProvider: ProviderGoogle,
			CreatedAt:    s.clock(),
			Avatar:       profile.Avatar,
		}
		s.users = append(s.users, u)
		created = true
		return []Event{UserRegistered{User: u.clone()}}, nil
	})
	if err != nil {
		return User{}, err
	}
	if u.IsBlocked {
		return User{}, ErrUserBlocked
	}
	if created {
		s.logger.Info("user registered", "user_id", u.ID, "provider", ProviderGoogle)
	}
	return u.clone(), nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.userIndex(id); idx >= 0 {
		return s.users[idx].clone(), true
	}
	return User{}, false
}

// GetUserByEmail looks a user up by email, ignoring case.
func (s *Store) GetUserByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.userByEmail(email); idx >= 0 {
		return s.users[idx].clone(), true
	}
	return User{}, false
}

// GetUsers returns every account in registration order.
func (s *Store) GetUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, len(s.users))
	for i := range s.users {
		out[i] = s.users[i].clone()
	}
	return out
}

// UpdateUser merges the non-nil fields of upd into the profile.
func (s *Store) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	var updated User
	err := s.mutate(ctx, "update_user", func() ([]Event, error) {
		idx := s.userIndex(id)
		if idx < 0 {
			return nil, notFound("user", id)
		}
		u := &s.users[idx]
		if upd.Username != nil {
			u.Username = strings.TrimSpace(*upd.Username)
		}
		if upd.DisplayName != nil {
			u.DisplayName = *upd.DisplayName
		}
		if upd.Avatar != nil {
			u.Avatar = *upd.Avatar
		}
		if upd.Phone != nil {
			u.Phone = *upd.Phone
		}
		updated = u.clone()
		return []Event{UserUpdated{User: updated.clone()}}, nil
	})
	return updated, err
}

// SetUserBlocked blocks or unblocks an account.
func (s *Store) SetUserBlocked(ctx context.Context, id string, blocked bool) (User, error) {
	var updated User
	err := s.mutate(ctx, "set_user_blocked", func() ([]Event, error) {
		idx := s.userIndex(id)
		if idx < 0 {
			return nil, notFound("user", id)
		}
		s.users[idx].IsBlocked = blocked
		updated = s.users[idx].clone()
		return []Event{UserUpdated{User: updated.clone()}}, nil
	})
	if err == nil {
		s.logger.Info("user block changed", "user_id", id, "blocked", blocked)
	}
	return updated, err
}

// AcceptTerms records that the user accepted the given terms version now.
func (s *Store) AcceptTerms(ctx context.Context, id, version string) (User, error) {
	if strings.TrimSpace(version) == "" {
		return User{}, fmt.Errorf("terms version: %w", ErrInvalidInput)
	}
	var updated User
	err := s.mutate(ctx, "accept_terms", func() ([]Event, error) {
		idx := s.userIndex(id)
		if idx < 0 {
			return nil, notFound("user", id)
		}
		s.users[idx].TermsAcceptance = &TermsAcceptance{Version: version, AcceptedAt: s.clock()}
		updated = s.users[idx].clone()
		return []Event{UserUpdated{User: updated.clone()}}, nil
	})
	return updated, err
}

// DeleteUser removes the account together with its ads, every message it sent or received,
// and the chats it took part in or that were about its ads.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	var removedAds int
	err := s.mutate(ctx, "delete_user", func() ([]Event, error) {
		idx := s.userIndex(id)
		if idx < 0 {
			return nil, notFound("user", id)
		}
		s.users = slices.Delete(s.users, idx, idx+1)

		ownedAds := make(map[string]struct{})
		s.ads = slices.DeleteFunc(s.ads, func(a Ad) bool {
			if a.UserID == id {
				ownedAds[a.ID] = struct{}{}
				return true
			}
			return false
		})
		removedAds = len(ownedAds)

		s.messages = slices.DeleteFunc(s.messages, func(m Message) bool {
			_, aboutAd := ownedAds[m.AdID]
			return m.SenderID == id || m.ReceiverID == id || (m.AdID != "" && aboutAd)
		})
		s.chats = slices.DeleteFunc(s.chats, func(c Chat) bool {
			_, aboutAd := ownedAds[c.AdID]
			return c.HasParticipant(id) || (c.AdID != "" && aboutAd)
		})
		return []Event{UserDeleted{UserID: id}}, nil
	})
	if err == nil {
		s.logger.Info("user deleted", "user_id", id, "ads_removed", removedAds)
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
