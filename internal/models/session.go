package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a user's authenticated session.
// The bearer token carried by the client is advisory only; this record is
// authoritative. IPAddress and UserAgent are captured at creation time and
// never change - any mismatch on a later request invalidates the session.
type Session struct {
	SessionID uuid.UUID // random v4, sole lookup key
	UserID    uuid.UUID // owner

	IPAddress string
	UserAgent string

	CreatedAt    time.Time
	ExpiresAt    time.Time // CreatedAt + session TTL, not refreshed by activity
	LastActivity time.Time
}

// IsExpired returns true if the session has passed its TTL window.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
