package market

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// seedDefaults creates the admin account of an empty store. Without a password the account
// can only be reached through Google sign-in with the same email.
func (s *Store) seedDefaults(ctx context.Context) error {
	var hash string
	if s.seed.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(s.seed.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash seed admin password: %w", err)
		}
		hash = string(h)
	}

	email := normalizeEmail(s.seed.Email)
	username := firstNonEmpty(s.seed.Username, "admin")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, User{
		ID:           newID(),
		Username:     username,
		Email:        email,
		DisplayName:  firstNonEmpty(s.seed.DisplayName, username),
		Role:         RoleAdmin,
		AuthProvider: ProviderEmail,
		CreatedAt:    s.clock(),
		PasswordHash: hash,
	})
	s.saveAll(ctx)
	s.logger.Info("seeded admin account", "email", email)
	return nil
}
