package ports

import (
	"context"

	"github.com/homespot/identity-service/internal/core/domain"
)

// SessionRepository is the durable registry of active bearer sessions, one row
// per issued token. The registry enforces at most one row per (user, role).
type SessionRepository interface {
	// FindActive returns every session currently held for the (userID, role)
	// pair. Used to revoke stale sessions before issuing a new one.
	FindActive(ctx context.Context, userID, role string) ([]*domain.ActiveSession, error)
	// Revoke deletes the given rows. Applied before Create so no transient
	// duplicate-active-session state is observable.
	Revoke(ctx context.Context, sessions []*domain.ActiveSession) error
	// Create inserts a new row. Returns domain.ErrDuplicateSession when a row
	// for the same (userID, role) already exists, letting the caller retry
	// the revoke-then-create sequence.
	Create(ctx context.Context, session *domain.ActiveSession) error
	// FindByToken returns domain.ErrSessionNotFound when no row matches.
	FindByToken(ctx context.Context, token string) (*domain.ActiveSession, error)
	// Delete removes the row; domain.ErrSessionNotFound when nothing matched.
	Delete(ctx context.Context, session *domain.ActiveSession) error
}
