// Package token issues and verifies the compact bearer tokens handed to
// clients. Tokens are HS256 JWTs carrying the user and session IDs; they are
// advisory only - the session store record remains authoritative.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid is returned for a malformed token, a bad signature,
	// or an unexpected signing method.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned when the embedded expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload carried by an issued token.
type Claims struct {
	UserID    uuid.UUID `json:"userId"`
	SessionID uuid.UUID `json:"sessionId"`
	jwt.RegisteredClaims
}

// Signer issues and verifies tokens with a process-wide secret supplied at
// construction time. Verification is pure computation with no I/O.
type Signer struct {
	secret        []byte
	refreshSecret []byte
	issuer        string
}

// New returns a Signer using secret for access tokens and refreshSecret for
// refresh tokens. Secrets must be at least 32 bytes.
func New(secret, refreshSecret []byte, issuer string) (*Signer, error) {
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if len(refreshSecret) < 32 {
		return nil, errors.New("refresh token secret must be at least 32 bytes")
	}
	return &Signer{secret: secret, refreshSecret: refreshSecret, issuer: issuer}, nil
}

// Issue creates a signed access token for the given user and session,
// expiring at now + ttl.
func (s *Signer) Issue(userID, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	return s.sign(userID, sessionID, ttl, s.secret)
}

// IssueRefresh creates a signed refresh token with a distinct secret, so an
// access token can never be replayed as a refresh token or vice versa.
func (s *Signer) IssueRefresh(userID, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	return s.sign(userID, sessionID, ttl, s.refreshSecret)
}

func (s *Signer) sign(userID, sessionID uuid.UUID, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an access token, returning the decoded claims.
// Returns ErrTokenExpired when past the embedded expiry and ErrTokenInvalid
// for any signature or format problem.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	return s.verify(tokenStr, s.secret)
}

// VerifyRefresh parses and validates a refresh token.
func (s *Signer) VerifyRefresh(tokenStr string) (*Claims, error) {
	return s.verify(tokenStr, s.refreshSecret)
}

func (s *Signer) verify(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
