package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can authenticate with a username and password.
// PasswordHash is a bcrypt hash with an embedded per-record salt; the
// plaintext password is never stored or logged.
type User struct {
	ID           uuid.UUID
	Username     string // unique, case-sensitive
	PasswordHash string
	CreatedAt    time.Time
}
