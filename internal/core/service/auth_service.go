package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/homespot/identity-service/internal/api/metrics"
	"github.com/homespot/identity-service/internal/core/domain"
	"github.com/homespot/identity-service/internal/core/ports"
)

type authService struct {
	accounts ports.AccountRepository
	sessions ports.SessionRepository
	issuer   ports.TokenIssuer
	lockout  domain.LockoutPolicy
	log      zerolog.Logger
}

// NewAuthService returns the login/logout workflow over the credential store,
// session registry, lockout policy and token issuer.
func NewAuthService(
	accounts ports.AccountRepository,
	sessions ports.SessionRepository,
	issuer ports.TokenIssuer,
	lockout domain.LockoutPolicy,
	log zerolog.Logger,
) ports.AuthService {
	return &authService{
		accounts: accounts,
		sessions: sessions,
		issuer:   issuer,
		lockout:  lockout,
		log:      log,
	}
}

// Login evaluates every account registered under the email, in creation
// order, until one of them reaches a terminal outcome:
//
//   - a locked candidate fails the whole attempt immediately ("first lockout
//     wins" — later candidates are never tried);
//   - a password mismatch only advances to the next candidate;
//   - a password match with an unconfirmed email fails the attempt;
//   - a password match with a confirmed email establishes the session.
//
// When no candidate succeeds, only the first candidate's failure counter is
// penalized, even if several accounts share the email.
func (s *authService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	if email == "" || password == "" {
		return nil, domain.ErrInvalidInput
	}

	candidates, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("login: find accounts: %w", err)
	}
	if len(candidates) == 0 {
		metrics.LoginAttemptsTotal.WithLabelValues("no_such_user").Inc()
		return nil, domain.ErrNoSuchUser
	}

	now := time.Now().UTC()
	for _, acc := range candidates {
		if s.lockout.IsLockedOut(acc, now) {
			s.log.Warn().Str("account_id", acc.ID).Msg("login rejected: account locked")
			metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
			return nil, domain.ErrAccountLocked
		}

		if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
			continue
		}

		if !acc.EmailConfirmed {
			metrics.LoginAttemptsTotal.WithLabelValues("email_unconfirmed").Inc()
			return nil, domain.ErrEmailNotConfirmed
		}

		return s.establishSession(ctx, acc)
	}

	first := candidates[0]
	s.lockout.RecordFailure(first, now)
	if first.LockoutEndUTC != nil {
		metrics.LockoutsTriggeredTotal.Inc()
	}
	if err := s.accounts.Update(ctx, first); err != nil {
		return nil, fmt.Errorf("login: record failure: %w", err)
	}
	metrics.LoginAttemptsTotal.WithLabelValues("invalid_password").Inc()
	return nil, domain.ErrInvalidPassword
}

// establishSession resets the lockout counters, supersedes any active session
// for the (account, role) pair and registers the freshly issued token.
func (s *authService) establishSession(ctx context.Context, acc *domain.Account) (*ports.LoginResult, error) {
	s.lockout.RecordSuccess(acc)
	if err := s.accounts.Update(ctx, acc); err != nil {
		return nil, fmt.Errorf("login: reset lockout state: %w", err)
	}

	role := sessionRole(acc)
	token, expiresAt, err := s.issuer.IssueSessionToken(acc.ID, role)
	if err != nil {
		return nil, fmt.Errorf("login: issue token: %w", err)
	}

	session := &domain.ActiveSession{
		UserID:       acc.ID,
		Role:         role,
		Token:        token,
		ExpiresAtUTC: expiresAt,
	}

	// Revoke-then-create is not atomic; the registry's (user, role) unique
	// constraint closes the window where a concurrent login for the same
	// identity slips a row in between the two statements. One retry is enough:
	// the second pass revokes the competing row.
	for attempt := 0; ; attempt++ {
		stale, err := s.sessions.FindActive(ctx, acc.ID, role)
		if err != nil {
			return nil, fmt.Errorf("login: find active sessions: %w", err)
		}
		if len(stale) > 0 {
			if err := s.sessions.Revoke(ctx, stale); err != nil {
				return nil, fmt.Errorf("login: revoke stale sessions: %w", err)
			}
			metrics.SessionsRevokedTotal.Add(float64(len(stale)))
		}

		err = s.sessions.Create(ctx, session)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrDuplicateSession) && attempt == 0 {
			s.log.Debug().Str("account_id", acc.ID).Str("role", role).Msg("concurrent login detected, retrying session replacement")
			continue
		}
		return nil, fmt.Errorf("login: create session: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	metrics.SessionsCreatedTotal.Inc()
	s.log.Info().Str("account_id", acc.ID).Str("role", role).Time("expires_at", expiresAt).Msg("session established")

	return &ports.LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Logout deletes the active session matching the token.
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrInvalidInput
	}

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("logout: find session: %w", err)
	}

	if err := s.sessions.Delete(ctx, session); err != nil {
		return fmt.Errorf("logout: delete session: %w", err)
	}

	s.log.Info().Str("account_id", session.UserID).Str("role", session.Role).Msg("session terminated")
	return nil
}

// sessionRole resolves the single role asserted for a new session. Accounts
// are created with exactly one role; Customer is the fallback for legacy rows
// imported without an assignment.
func sessionRole(acc *domain.Account) string {
	if len(acc.Roles) > 0 {
		return acc.Roles[0]
	}
	return domain.RoleCustomer
}
