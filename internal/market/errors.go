package market

import "errors"

var (
	// ErrNotFound is returned when a mutation targets an id that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserBlocked is returned when a blocked account tries to sign in.
	ErrUserBlocked = errors.New("user is blocked")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPaymentRequired is returned when moderating an ad whose posting fee is unpaid.
	ErrPaymentRequired = errors.New("ad payment not completed")
	// ErrInvalidTransition is returned when a status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNoModerator is returned when moderation is requested but no moderator is configured.
	ErrNoModerator = errors.New("no content moderator configured")

	errUnchanged = errors.New("unchanged")
)
