package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/smartops/authd/internal/cookies"
	"github.com/smartops/authd/internal/httpx"
	"github.com/smartops/authd/internal/store"
	"github.com/smartops/authd/internal/telemetry"
	"github.com/smartops/authd/internal/token"
)

// Guard is the request-time state machine that validates a presented bearer
// cookie against the session store and the request's client fingerprint.
// Each request is evaluated independently; the guard keeps no state of its
// own beyond what the session store holds.
type Guard struct {
	codec    *cookies.Codec
	signer   *token.Signer
	sessions store.SessionStore
}

// NewGuard returns a session guard.
func NewGuard(codec *cookies.Codec, signer *token.Signer, sessions store.SessionStore) *Guard {
	return &Guard{codec: codec, signer: signer, sessions: sessions}
}

// Middleware validates the request and either rejects it (401/403) or
// attaches the caller's Identity to the context and passes it on.
//
// Terminal outcomes are exactly one of: allowed-with-identity, 401 (missing,
// invalid, or stale token or session), 403 (fingerprint mismatch, session
// destroyed as a side effect).
func (g *Guard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			metrics := telemetry.GetMetrics()

			// 1. No bearer cookie at all
			tokenStr, err := g.codec.Read(r)
			if err != nil {
				if errors.Is(err, http.ErrNoCookie) {
					metrics.GuardRejectionsTotal.Add(ctx, 1)
					rejectJSON(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				// Cookie present but its signature does not verify
				log.Debug().Err(err).Msg("Guard: cookie signature validation failed")
				metrics.GuardRejectionsTotal.Add(ctx, 1)
				g.codec.Clear(w)
				rejectJSON(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			// 2. Verify the token signature and embedded expiry
			claims, err := g.signer.Verify(tokenStr)
			if err != nil {
				log.Debug().Err(err).Msg("Guard: token verification failed")
				metrics.GuardRejectionsTotal.Add(ctx, 1)
				g.codec.Clear(w)
				rejectJSON(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			// 3. The token is advisory; the session record is authoritative
			session, err := g.sessions.Find(ctx, claims.SessionID, claims.UserID)
			if err != nil {
				if !errors.Is(err, store.ErrSessionNotFound) {
					log.Error().Err(err).Msg("Guard: session lookup failed")
					rejectJSON(w, http.StatusInternalServerError, "Internal Server Error")
					return
				}
				metrics.GuardRejectionsTotal.Add(ctx, 1)
				g.codec.Clear(w)
				rejectJSON(w, http.StatusUnauthorized, "Session expired or invalidated")
				return
			}

			// 4. IP mismatch means the token is being replayed from another
			// client. Fail closed: burn the session so a retry cannot succeed.
			currentIP := httpx.ClientIPFromContext(ctx)
			if session.IPAddress != currentIP {
				log.Warn().
					Str("session_id", session.SessionID.String()).
					Str("session_ip", session.IPAddress).
					Str("request_ip", currentIP).
					Msg("Guard: IP mismatch, destroying session")

				metrics.HijackDetectedTotal.Add(ctx, 1)
				g.burnSession(r, session.SessionID, session.UserID)
				g.codec.Clear(w)
				rejectJSON(w, http.StatusForbidden, "Security check failed. IP mismatch.")
				return
			}

			// 5. Same policy for the User-Agent string, exact match
			if session.UserAgent != r.UserAgent() {
				log.Warn().
					Str("session_id", session.SessionID.String()).
					Msg("Guard: User-Agent mismatch, destroying session")

				metrics.HijackDetectedTotal.Add(ctx, 1)
				g.burnSession(r, session.SessionID, session.UserID)
				g.codec.Clear(w)
				rejectJSON(w, http.StatusForbidden, "Security check failed. User-Agent mismatch.")
				return
			}

			// 6. Both match: bump activity (best-effort) and let the
			// request through with the identity attached
			if err := g.sessions.Touch(ctx, session.SessionID); err != nil {
				// A touch racing a delete is benign; the next request
				// simply finds no session
				log.Debug().Err(err).Msg("Guard: failed to touch session")
			}

			identity := &Identity{
				UserID:    session.UserID,
				SessionID: session.SessionID,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// SoftMiddleware attaches the identity when the request carries a fully
// valid session but never rejects. Used by the logout endpoints, where a
// missing or invalid session is treated as already logged out.
func (g *Guard) SoftMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			tokenStr, err := g.codec.Read(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := g.signer.Verify(tokenStr)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			session, err := g.sessions.Find(ctx, claims.SessionID, claims.UserID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			identity := &Identity{
				UserID:    session.UserID,
				SessionID: session.SessionID,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// burnSession deletes a session flagged as hijacked. Deletion failures are
// logged but the request is still rejected; the record is then reclaimed by
// TTL expiry at the latest.
func (g *Guard) burnSession(r *http.Request, sessionID, userID uuid.UUID) {
	if err := g.sessions.Delete(r.Context(), sessionID, userID); err != nil {
		log.Error().Err(err).Msg("Guard: failed to delete hijacked session")
	}
}

func rejectJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
