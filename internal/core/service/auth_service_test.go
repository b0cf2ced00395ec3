package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/homespot/identity-service/internal/core/domain"
	"github.com/homespot/identity-service/internal/core/ports"
)

type stubAccountRepo struct {
	accounts map[string]*domain.Account
	seq      int
	stamps   int
}

func newStubAccountRepo() *stubAccountRepo {
	return &stubAccountRepo{accounts: make(map[string]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Roles = append([]string(nil), a.Roles...)
	if a.LockoutEndUTC != nil {
		end := *a.LockoutEndUTC
		clone.LockoutEndUTC = &end
	}
	return &clone
}

func (r *stubAccountRepo) add(acc *domain.Account) *domain.Account {
	r.seq++
	copy := cloneAccount(acc)
	if copy.ID == "" {
		copy.ID = fmt.Sprintf("acc_%d", r.seq)
	}
	if copy.CreatedAt.IsZero() {
		copy.CreatedAt = time.Unix(int64(1700000000+r.seq), 0).UTC()
	}
	r.accounts[copy.ID] = copy
	return cloneAccount(copy)
}

func (r *stubAccountRepo) FindByEmail(_ context.Context, email string) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.Email == email {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *stubAccountRepo) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	for _, a := range r.accounts {
		if a.Username == username {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrNoSuchUser
}

func (r *stubAccountRepo) Create(_ context.Context, acc *domain.Account) (*domain.Account, error) {
	return r.add(acc), nil
}

func (r *stubAccountRepo) Update(_ context.Context, acc *domain.Account) error {
	stored, ok := r.accounts[acc.ID]
	if !ok {
		return domain.ErrNoSuchUser
	}
	stored.EmailConfirmed = acc.EmailConfirmed
	stored.FailedAccessCount = acc.FailedAccessCount
	stored.LockoutEndUTC = nil
	if acc.LockoutEndUTC != nil {
		end := *acc.LockoutEndUTC
		stored.LockoutEndUTC = &end
	}
	stored.PhoneNumber = acc.PhoneNumber
	stored.Profile = acc.Profile
	return nil
}

func (r *stubAccountRepo) UpdatePassword(_ context.Context, accountID, passwordHash string) error {
	stored, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrNoSuchUser
	}
	r.stamps++
	stored.PasswordHash = passwordHash
	stored.SecurityStamp = fmt.Sprintf("stamp_%d", r.stamps)
	return nil
}

func (r *stubAccountRepo) EnsureRole(_ context.Context, _ string) error { return nil }

func (r *stubAccountRepo) AssignRole(_ context.Context, accountID, role string) error {
	stored, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrNoSuchUser
	}
	stored.Roles = append(stored.Roles, role)
	return nil
}

func (r *stubAccountRepo) GeneratePurposeToken(_ context.Context, acc *domain.Account, purpose domain.TokenPurpose) (string, error) {
	return fmt.Sprintf("%s|%s|%s", acc.ID, purpose, acc.SecurityStamp), nil
}

func (r *stubAccountRepo) VerifyPurposeToken(_ context.Context, acc *domain.Account, purpose domain.TokenPurpose, token string) (bool, error) {
	stored, ok := r.accounts[acc.ID]
	if !ok {
		return false, nil
	}
	return token == fmt.Sprintf("%s|%s|%s", acc.ID, purpose, stored.SecurityStamp), nil
}

type stubSessionRepo struct {
	sessions []*domain.ActiveSession

	// raceOnCreate simulates a concurrent login completing its own
	// revoke-then-create between this login's revoke and create: the first
	// Create call inserts a competing row and reports a duplicate.
	raceOnCreate *domain.ActiveSession
}

func (r *stubSessionRepo) FindActive(_ context.Context, userID, role string) ([]*domain.ActiveSession, error) {
	var out []*domain.ActiveSession
	for _, s := range r.sessions {
		if s.UserID == userID && s.Role == role {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubSessionRepo) Revoke(_ context.Context, sessions []*domain.ActiveSession) error {
	for _, victim := range sessions {
		for i, s := range r.sessions {
			if s.Token == victim.Token {
				r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (r *stubSessionRepo) Create(_ context.Context, session *domain.ActiveSession) error {
	if r.raceOnCreate != nil {
		r.sessions = append(r.sessions, r.raceOnCreate)
		r.raceOnCreate = nil
		return domain.ErrDuplicateSession
	}
	for _, s := range r.sessions {
		if s.UserID == session.UserID && s.Role == session.Role {
			return domain.ErrDuplicateSession
		}
	}
	r.sessions = append(r.sessions, session)
	return nil
}

func (r *stubSessionRepo) FindByToken(_ context.Context, token string) (*domain.ActiveSession, error) {
	for _, s := range r.sessions {
		if s.Token == token {
			return s, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r *stubSessionRepo) Delete(_ context.Context, session *domain.ActiveSession) error {
	for i, s := range r.sessions {
		if s.Token == session.Token {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func newTestAuthService(t *testing.T, accounts ports.AccountRepository, sessions ports.SessionRepository) ports.AuthService {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{Secret: "secret", SessionTTL: time.Hour})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	lockout := domain.NewLockoutPolicy(5, 3*time.Minute)
	return NewAuthService(accounts, sessions, issuer, lockout, zerolog.Nop())
}

func TestAuthService_Login_EmptyInput(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo(), &stubSessionRepo{})

	if _, err := svc.Login(context.Background(), "", "pass"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "a@x.com", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAuthService_Login_NoSuchUser(t *testing.T) {
	svc := newTestAuthService(t, newStubAccountRepo(), &stubSessionRepo{})

	if _, err := svc.Login(context.Background(), "ghost@x.com", "pass"); !errors.Is(err, domain.ErrNoSuchUser) {
		t.Fatalf("expected ErrNoSuchUser, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := newStubAccountRepo()
	sessions := &stubSessionRepo{}
	acc := repo.add(&domain.Account{
		Username:       "alice",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "s3cret"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleOwner},
	})
	svc := newTestAuthService(t, repo, sessions)

	result, err := svc.Login(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("expected a token")
	}
	if !result.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected a future expiry, got %s", result.ExpiresAt)
	}

	rows, _ := sessions.FindActive(context.Background(), acc.ID, domain.RoleOwner)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one active session, got %d", len(rows))
	}
	if rows[0].Token != result.Token {
		t.Fatalf("registered session does not carry the issued token")
	}
}

func TestAuthService_Login_SuccessResetsLockoutState(t *testing.T) {
	repo := newStubAccountRepo()
	past := time.Now().UTC().Add(-time.Minute)
	acc := repo.add(&domain.Account{
		Username:          "alice",
		Email:             "a@x.com",
		PasswordHash:      mustHash(t, "s3cret"),
		EmailConfirmed:    true,
		FailedAccessCount: 4,
		LockoutEndUTC:     &past, // expired window
		Roles:             []string{domain.RoleOwner},
	})
	svc := newTestAuthService(t, repo, &stubSessionRepo{})

	if _, err := svc.Login(context.Background(), "a@x.com", "s3cret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored := repo.accounts[acc.ID]
	if stored.FailedAccessCount != 0 {
		t.Fatalf("expected failure counter reset, got %d", stored.FailedAccessCount)
	}
	if stored.LockoutEndUTC != nil {
		t.Fatalf("expected lockout window cleared")
	}
}

func TestAuthService_Login_InvalidPasswordPenalizesFirstCandidate(t *testing.T) {
	repo := newStubAccountRepo()
	first := repo.add(&domain.Account{
		Username:       "owner",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "owner-pass"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleOwner},
	})
	second := repo.add(&domain.Account{
		Username:       "customer",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "customer-pass"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleCustomer},
	})
	svc := newTestAuthService(t, repo, &stubSessionRepo{})

	if _, err := svc.Login(context.Background(), "a@x.com", "wrong"); !errors.Is(err, domain.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}

	if got := repo.accounts[first.ID].FailedAccessCount; got != 1 {
		t.Fatalf("expected first candidate penalized once, got %d", got)
	}
	if got := repo.accounts[second.ID].FailedAccessCount; got != 0 {
		t.Fatalf("expected second candidate untouched, got %d", got)
	}
}

func TestAuthService_Login_SecondCandidateMatches(t *testing.T) {
	repo := newStubAccountRepo()
	repo.add(&domain.Account{
		Username:       "owner",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "owner-pass"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleOwner},
	})
	second := repo.add(&domain.Account{
		Username:       "customer",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "customer-pass"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleCustomer},
	})
	sessions := &stubSessionRepo{}
	svc := newTestAuthService(t, repo, sessions)

	if _, err := svc.Login(context.Background(), "a@x.com", "customer-pass"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	rows, _ := sessions.FindActive(context.Background(), second.ID, domain.RoleCustomer)
	if len(rows) != 1 {
		t.Fatalf("expected session for second candidate, got %d rows", len(rows))
	}
}

func TestAuthService_Login_LockoutAfterThreshold(t *testing.T) {
	repo := newStubAccountRepo()
	repo.add(&domain.Account{
		Username:       "alice",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "s3cret"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleOwner},
	})
	svc := newTestAuthService(t, repo, &stubSessionRepo{})

	for i := 0; i < 5; i++ {
		if _, err := svc.Login(context.Background(), "a@x.com", "wrong"); !errors.Is(err, domain.ErrInvalidPassword) {
			t.Fatalf("attempt %d: expected ErrInvalidPassword, got %v", i+1, err)
		}
	}

	// Sixth attempt fails with AccountLocked even with the correct password.
	if _, err := svc.Login(context.Background(), "a@x.com", "s3cret"); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestAuthService_Login_FirstLockoutWins(t *testing.T) {
	repo := newStubAccountRepo()
	end := time.Now().UTC().Add(2 * time.Minute)
	repo.add(&domain.Account{
		Username:       "owner",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "owner-pass"),
		EmailConfirmed: true,
		LockoutEndUTC:  &end,
		Roles:          []string{domain.RoleOwner},
	})
	repo.add(&domain.Account{
		Username:       "customer",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "customer-pass"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleCustomer},
	})
	svc := newTestAuthService(t, repo, &stubSessionRepo{})

	// The second candidate's password is correct, but the locked first
	// candidate terminates the attempt.
	if _, err := svc.Login(context.Background(), "a@x.com", "customer-pass"); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestAuthService_Login_EmailNotConfirmed(t *testing.T) {
	repo := newStubAccountRepo()
	repo.add(&domain.Account{
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: mustHash(t, "s3cret"),
		Roles:        []string{domain.RoleOwner},
	})
	svc := newTestAuthService(t, repo, &stubSessionRepo{})

	if _, err := svc.Login(context.Background(), "a@x.com", "s3cret"); !errors.Is(err, domain.ErrEmailNotConfirmed) {
		t.Fatalf("expected ErrEmailNotConfirmed, got %v", err)
	}
}

func TestAuthService_Login_SupersedesExistingSession(t *testing.T) {
	repo := newStubAccountRepo()
	acc := repo.add(&domain.Account{
		Username:       "alice",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "s3cret"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleOwner},
	})
	stale := &domain.ActiveSession{
		UserID:       acc.ID,
		Role:         domain.RoleOwner,
		Token:        "stale-token",
		ExpiresAtUTC: time.Now().UTC().Add(time.Hour),
	}
	sessions := &stubSessionRepo{sessions: []*domain.ActiveSession{stale}}
	svc := newTestAuthService(t, repo, sessions)

	result, err := svc.Login(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	rows, _ := sessions.FindActive(context.Background(), acc.ID, domain.RoleOwner)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one active session, got %d", len(rows))
	}
	if rows[0].Token == "stale-token" {
		t.Fatalf("stale session survived the login")
	}
	if rows[0].Token != result.Token {
		t.Fatalf("surviving session is not the fresh one")
	}
}

func TestAuthService_Login_ConcurrentLoginRetries(t *testing.T) {
	repo := newStubAccountRepo()
	acc := repo.add(&domain.Account{
		Username:       "alice",
		Email:          "a@x.com",
		PasswordHash:   mustHash(t, "s3cret"),
		EmailConfirmed: true,
		Roles:          []string{domain.RoleOwner},
	})
	sessions := &stubSessionRepo{
		raceOnCreate: &domain.ActiveSession{
			UserID:       acc.ID,
			Role:         domain.RoleOwner,
			Token:        "competing-token",
			ExpiresAtUTC: time.Now().UTC().Add(time.Hour),
		},
	}
	svc := newTestAuthService(t, repo, sessions)

	result, err := svc.Login(context.Background(), "a@x.com", "s3cret")
	if err != nil {
		t.Fatalf("login failed despite retry: %v", err)
	}

	rows, _ := sessions.FindActive(context.Background(), acc.ID, domain.RoleOwner)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one active session after race, got %d", len(rows))
	}
	if rows[0].Token != result.Token {
		t.Fatalf("expected the retried login to own the surviving session")
	}
}

func TestAuthService_Logout(t *testing.T) {
	sessions := &stubSessionRepo{sessions: []*domain.ActiveSession{
		{UserID: "acc_1", Role: domain.RoleOwner, Token: "tok-1"},
	}}
	svc := newTestAuthService(t, newStubAccountRepo(), sessions)

	if err := svc.Logout(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := svc.Logout(context.Background(), "unknown"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.Logout(context.Background(), "tok-1"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if len(sessions.sessions) != 0 {
		t.Fatalf("expected session removed, %d remain", len(sessions.sessions))
	}
	if err := svc.Logout(context.Background(), "tok-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second logout, got %v", err)
	}
}
