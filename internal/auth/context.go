package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated caller attached to the request context by
// the session guard. It is threaded explicitly through the context rather
// than mutated onto a shared request structure.
type Identity struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the authenticated identity from the context.
// The second return is false when the request did not pass the guard.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}
