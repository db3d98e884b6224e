package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/smartops/authd/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionExpired  = errors.New("session expired")
)

// UserStore persists user accounts.
type UserStore interface {
	// Create persists a new user. Returns ErrUsernameTaken if the username
	// already exists (case-sensitive exact match).
	Create(ctx context.Context, user *models.User) error

	// GetByUsername retrieves a user by exact username.
	// Returns ErrUserNotFound if no such user exists.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Get retrieves a user by ID. Returns ErrUserNotFound if absent.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// SessionStore persists active session records keyed by session ID.
type SessionStore interface {
	// Create persists a new session. Session ID uniqueness is a hard
	// constraint enforced by the store.
	Create(ctx context.Context, session *models.Session) error

	// Find returns the session only if both session ID and user ID match
	// exactly. Expired sessions behave as not found.
	Find(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error)

	// Touch sets last_activity to now. Callers treat failures as
	// best-effort; a touched-after-delete race is a benign no-op.
	Touch(ctx context.Context, sessionID uuid.UUID) error

	// Delete removes one session owned by userID. Deleting a session that
	// does not exist succeeds silently.
	Delete(ctx context.Context, sessionID, userID uuid.UUID) error

	// DeleteByUser removes every session owned by userID and returns the
	// number removed (may be zero).
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error)

	// DeleteExpired removes all sessions past their TTL window (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}
