package domain

import "errors"

// Authentication failures. Surfaced as distinct kinds so the transport layer
// can map them to different client-visible messages.
var (
	ErrNoSuchUser        = errors.New("no account matches the supplied credentials")
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrEmailNotConfirmed = errors.New("email address has not been confirmed")
	ErrInvalidPassword   = errors.New("invalid password")
)

// Session failures.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrSessionNotFound  = errors.New("active session not found")
	ErrDuplicateSession = errors.New("active session already exists for identity and role")
)

// Registration failures.
var (
	ErrDuplicateUsername     = errors.New("username already taken")
	ErrDuplicateRoleForEmail = errors.New("email already registered for this role")
	ErrPasswordReuse         = errors.New("password already in use by another account with this email")
	ErrRoleCreateFailed      = errors.New("role could not be created")
)

// Confirmation and reset failures.
var (
	ErrNoSuchEmail           = errors.New("no account registered for this email")
	ErrRoleNotHeld           = errors.New("no account with this email holds the requested role")
	ErrInvalidToken          = errors.New("token verification failed")
	ErrMalformedToken        = errors.New("token is not valid url-safe base64")
	ErrInvalidOrExpiredToken = errors.New("token is invalid or has expired")
	ErrPasswordUnchanged     = errors.New("new password must differ from the current password")
)
