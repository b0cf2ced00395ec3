package ports

import (
	"context"

	"github.com/homespot/identity-service/internal/core/domain"
)

// AccountRepository is the credential store: per-account identity records plus
// the store's built-in purpose-token capability (the core only transports the
// opaque values, it does not invent the cryptography).
type AccountRepository interface {
	// FindByEmail returns every account registered under the email, ordered
	// by creation time. An empty slice means the email is unknown.
	FindByEmail(ctx context.Context, email string) ([]*domain.Account, error)
	// FindByUsername returns domain.ErrNoSuchUser when the username is free.
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	Create(ctx context.Context, acc *domain.Account) (*domain.Account, error)
	// Update persists mutable identity state: failure counter, lockout window,
	// email-confirmed flag, profile fields.
	Update(ctx context.Context, acc *domain.Account) error
	// UpdatePassword stores a new password hash and rotates the account's
	// security stamp, invalidating previously issued purpose tokens.
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error

	// EnsureRole creates the role if it does not exist yet.
	EnsureRole(ctx context.Context, role string) error
	AssignRole(ctx context.Context, accountID, role string) error

	// GeneratePurposeToken mints an opaque token bound to the account and
	// purpose. The caller is responsible for transport encoding.
	GeneratePurposeToken(ctx context.Context, acc *domain.Account, purpose domain.TokenPurpose) (string, error)
	// VerifyPurposeToken reports whether the token was issued for this
	// account and purpose and is still within its lifetime.
	VerifyPurposeToken(ctx context.Context, acc *domain.Account, purpose domain.TokenPurpose, token string) (bool, error)
}
