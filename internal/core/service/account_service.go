package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/homespot/identity-service/internal/api/metrics"
	"github.com/homespot/identity-service/internal/core/domain"
	"github.com/homespot/identity-service/internal/core/ports"
)

// ConsumedTokenStore abstracts the single-use guard for purpose tokens
// (Redis). A token that verified once must not verify again.
type ConsumedTokenStore interface {
	IsConsumed(ctx context.Context, token string) (bool, error)
	MarkConsumed(ctx context.Context, token string) error
}

type accountService struct {
	accounts    ports.AccountRepository
	consumed    ConsumedTokenStore
	redirectURL string
	log         zerolog.Logger
}

// NewAccountService returns the registration, email-confirmation and
// password-reset workflows. redirectURL is the fixed post-confirmation
// target returned to the client.
func NewAccountService(
	accounts ports.AccountRepository,
	consumed ConsumedTokenStore,
	redirectURL string,
	log zerolog.Logger,
) ports.AccountService {
	return &accountService{
		accounts:    accounts,
		consumed:    consumed,
		redirectURL: redirectURL,
		log:         log,
	}
}

// Register runs the sign-up pipeline: username check, email+role check,
// password-reuse check, account create, role ensure+assign, confirmation
// token issue. The encoded token is returned to the caller, which is
// responsible for embedding it in a link and delivering it.
func (s *accountService) Register(ctx context.Context, in ports.RegisterInput) (string, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" || in.Role == "" {
		return "", domain.ErrInvalidInput
	}
	if in.Role != domain.RoleOwner && in.Role != domain.RoleCustomer {
		return "", domain.ErrInvalidInput
	}

	if _, err := s.accounts.FindByUsername(ctx, in.Username); err == nil {
		return "", domain.ErrDuplicateUsername
	} else if !errors.Is(err, domain.ErrNoSuchUser) {
		return "", fmt.Errorf("register: username check: %w", err)
	}

	siblings, err := s.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		return "", fmt.Errorf("register: email check: %w", err)
	}
	for _, sib := range siblings {
		if sib.HasRole(in.Role) {
			return "", domain.ErrDuplicateRoleForEmail
		}
		// The same email may hold several roles as separate identities, but
		// never with a shared password: that would silently create a
		// look-alike identity.
		if bcrypt.CompareHashAndPassword([]byte(sib.PasswordHash), []byte(in.Password)) == nil {
			return "", domain.ErrPasswordReuse
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("register: hash password: %w", err)
	}

	now := time.Now().UTC()
	acc := &domain.Account{
		Username:      in.Username,
		Email:         in.Email,
		PhoneNumber:   in.PhoneNumber,
		PasswordHash:  string(hash),
		SecurityStamp: uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.accounts.Create(ctx, acc)
	if err != nil {
		return "", fmt.Errorf("register: create account: %w", err)
	}

	if err := s.accounts.EnsureRole(ctx, in.Role); err != nil {
		return "", fmt.Errorf("register: %w: %v", domain.ErrRoleCreateFailed, err)
	}
	if err := s.accounts.AssignRole(ctx, created.ID, in.Role); err != nil {
		return "", fmt.Errorf("register: assign role: %w", err)
	}
	created.Roles = append(created.Roles, in.Role)

	token, err := s.accounts.GeneratePurposeToken(ctx, created, domain.PurposeEmailConfirmation)
	if err != nil {
		return "", fmt.Errorf("register: confirmation token: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues(in.Role).Inc()
	s.log.Info().Str("account_id", created.ID).Str("role", in.Role).Msg("account registered, confirmation pending")

	return EncodeOpaqueToken(token), nil
}

// ConfirmEmail verifies the confirmation token against the first account
// holding the role for the email, marks the email confirmed and returns the
// configured redirect target.
func (s *accountService) ConfirmEmail(ctx context.Context, encodedToken, email, role string) (string, error) {
	token, err := DecodeOpaqueToken(encodedToken)
	if err != nil {
		return "", domain.ErrInvalidToken
	}

	candidates, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("confirm email: %w", err)
	}
	if len(candidates) == 0 {
		return "", domain.ErrNoSuchEmail
	}

	acc := firstWithRole(candidates, role)
	if acc == nil {
		return "", domain.ErrRoleNotHeld
	}

	if used, err := s.consumed.IsConsumed(ctx, token); err != nil {
		s.log.Warn().Err(err).Msg("consumed-token check failed, verifying anyway")
	} else if used {
		return "", domain.ErrInvalidToken
	}

	ok, err := s.accounts.VerifyPurposeToken(ctx, acc, domain.PurposeEmailConfirmation, token)
	if err != nil {
		return "", fmt.Errorf("confirm email: verify token: %w", err)
	}
	if !ok {
		return "", domain.ErrInvalidToken
	}

	acc.EmailConfirmed = true
	acc.UpdatedAt = time.Now().UTC()
	if err := s.accounts.Update(ctx, acc); err != nil {
		return "", fmt.Errorf("confirm email: persist: %w", err)
	}

	if err := s.consumed.MarkConsumed(ctx, token); err != nil {
		s.log.Warn().Err(err).Str("account_id", acc.ID).Msg("failed to mark confirmation token consumed")
	}

	s.log.Info().Str("account_id", acc.ID).Str("role", role).Msg("email confirmed")
	return s.redirectURL, nil
}

// ForgotPassword issues an encoded reset token for the first account holding
// the role under the email.
func (s *accountService) ForgotPassword(ctx context.Context, email, role string) (string, error) {
	if email == "" || role == "" {
		return "", domain.ErrInvalidInput
	}

	candidates, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("forgot password: %w", err)
	}
	if len(candidates) == 0 {
		return "", domain.ErrNoSuchEmail
	}

	acc := firstWithRole(candidates, role)
	if acc == nil {
		return "", domain.ErrRoleNotHeld
	}

	token, err := s.accounts.GeneratePurposeToken(ctx, acc, domain.PurposePasswordReset)
	if err != nil {
		return "", fmt.Errorf("forgot password: reset token: %w", err)
	}

	s.log.Info().Str("account_id", acc.ID).Str("role", role).Msg("password reset token issued")
	return EncodeOpaqueToken(token), nil
}

// ResetPassword verifies the reset token and stores the new password. The
// reset must actually change the password: a new password equal to any
// candidate's current one is rejected before the token is even decoded.
func (s *accountService) ResetPassword(ctx context.Context, encodedToken, email, role, newPassword string) error {
	if encodedToken == "" || email == "" || role == "" || newPassword == "" {
		return domain.ErrInvalidInput
	}

	candidates, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if len(candidates) == 0 {
		return domain.ErrNoSuchUser
	}

	for _, acc := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(newPassword)) == nil {
			return domain.ErrPasswordUnchanged
		}
	}

	acc := firstWithRole(candidates, role)
	if acc == nil {
		return domain.ErrNoSuchUser
	}

	token, err := DecodeOpaqueToken(encodedToken)
	if err != nil {
		return domain.ErrMalformedToken
	}

	if used, err := s.consumed.IsConsumed(ctx, token); err != nil {
		s.log.Warn().Err(err).Msg("consumed-token check failed, verifying anyway")
	} else if used {
		return domain.ErrInvalidOrExpiredToken
	}

	ok, err := s.accounts.VerifyPurposeToken(ctx, acc, domain.PurposePasswordReset, token)
	if err != nil {
		return fmt.Errorf("reset password: verify token: %w", err)
	}
	if !ok {
		return domain.ErrInvalidOrExpiredToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("reset password: hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, acc.ID, string(hash)); err != nil {
		return fmt.Errorf("reset password: persist: %w", err)
	}

	if err := s.consumed.MarkConsumed(ctx, token); err != nil {
		s.log.Warn().Err(err).Str("account_id", acc.ID).Msg("failed to mark reset token consumed")
	}

	metrics.PasswordResetsTotal.Inc()
	s.log.Info().Str("account_id", acc.ID).Str("role", role).Msg("password reset completed")
	return nil
}

// firstWithRole returns the first candidate holding the role, preserving the
// repository's creation-time ordering.
func firstWithRole(candidates []*domain.Account, role string) *domain.Account {
	for _, acc := range candidates {
		if acc.HasRole(role) {
			return acc
		}
	}
	return nil
}
