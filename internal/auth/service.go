package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/smartops/authd/internal/credentials"
	"github.com/smartops/authd/internal/models"
	"github.com/smartops/authd/internal/store"
	"github.com/smartops/authd/internal/telemetry"
	"github.com/smartops/authd/internal/token"
)

// ServiceConfig carries the three independent expiry horizons. They are
// deliberately separate knobs: the access token can expire before the cookie
// does, and the session TTL is anchored to creation time rather than last
// activity, so an active session can still lapse mid-use. Operators tune
// these three clocks explicitly instead of the service reconciling them.
type ServiceConfig struct {
	// AccessTokenTTL is the embedded expiry of issued tokens. Default 15m.
	AccessTokenTTL time.Duration

	// SessionTTL is the session record's lifetime measured from CreatedAt.
	// Default 30m.
	SessionTTL time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *ServiceConfig) ApplyDefaults() {
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * time.Minute
	}
}

// LoginResult is returned on successful signup or login. Token is the raw
// signed access token; the HTTP layer wraps it in the bearer cookie.
type LoginResult struct {
	UserID  uuid.UUID
	Token   string
	Session *models.Session
}

// Service orchestrates signup, login, logout, and logout-all. It is the only
// component that touches both the credential store and the session store.
type Service struct {
	creds    *credentials.Store
	sessions store.SessionStore
	signer   *token.Signer
	cfg      ServiceConfig
}

// NewService returns the auth orchestrator.
func NewService(creds *credentials.Store, sessions store.SessionStore, signer *token.Signer, cfg ServiceConfig) *Service {
	cfg.ApplyDefaults()
	return &Service{
		creds:    creds,
		sessions: sessions,
		signer:   signer,
		cfg:      cfg,
	}
}

// Signup creates the credentials and immediately logs the new user in.
// Surfaces credentials.ErrUsernameTaken and credentials.ErrPasswordTooShort.
func (s *Service) Signup(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	user, err := s.creds.Create(ctx, username, password)
	if err != nil {
		return nil, err
	}

	telemetry.GetMetrics().SignupsTotal.Add(ctx, 1)

	return s.loginSuccess(ctx, user.ID, ip, userAgent)
}

// Login verifies the credentials and performs the session-issuance sequence.
// Unknown usernames and wrong passwords both surface
// credentials.ErrInvalidCredentials with no distinction.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	user, err := s.creds.Verify(ctx, username, password)
	if err != nil {
		telemetry.GetMetrics().LoginFailuresTotal.Add(ctx, 1)
		return nil, err
	}

	telemetry.GetMetrics().LoginsTotal.Add(ctx, 1)

	return s.loginSuccess(ctx, user.ID, ip, userAgent)
}

// loginSuccess creates a session bound to the client fingerprint and issues
// the access token. If token issuance fails after the session is created the
// session is left behind and reclaimed by TTL expiry; no compensating delete
// is performed.
func (s *Service) loginSuccess(ctx context.Context, userID uuid.UUID, ip, userAgent string) (*LoginResult, error) {
	now := time.Now()
	session := &models.Session{
		SessionID:    uuid.New(),
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
		LastActivity: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)

	signed, err := s.signer.Issue(userID, session.SessionID, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("session_id", session.SessionID.String()).
		Msg("Session issued")

	return &LoginResult{
		UserID:  userID,
		Token:   signed,
		Session: session,
	}, nil
}

// Logout deletes the one session named in the identity. A nil identity means
// the caller was already logged out; that is a success.
func (s *Service) Logout(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return nil
	}

	if err := s.sessions.Delete(ctx, identity.SessionID, identity.UserID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, 1)

	log.Info().
		Str("user_id", identity.UserID.String()).
		Str("session_id", identity.SessionID.String()).
		Msg("Logged out")

	return nil
}

// LogoutAll deletes every session owned by the identity's user. Other
// devices' cookies become unusable on their next request; there is no
// server-to-client notification.
func (s *Service) LogoutAll(ctx context.Context, identity *Identity) (int, error) {
	if identity == nil {
		return 0, nil
	}

	count, err := s.sessions.DeleteByUser(ctx, identity.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, int64(count))

	log.Info().
		Str("user_id", identity.UserID.String()).
		Int("count", count).
		Msg("Logged out of all sessions")

	return count, nil
}
