// Package httpapi exposes the authentication service over HTTP with JSON
// bodies. Handlers map domain sentinel errors onto the response taxonomy:
// 400 validation, 401 unauthenticated, 403 security rejection, 409 conflict,
// 500 everything else.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/smartops/authd/internal/auth"
	"github.com/smartops/authd/internal/cookies"
	"github.com/smartops/authd/internal/credentials"
	"github.com/smartops/authd/internal/httpx"
	"github.com/smartops/authd/internal/token"
)

// Handler serves the /auth routes.
type Handler struct {
	svc    *auth.Service
	guard  *auth.Guard
	codec  *cookies.Codec
	signer *token.Signer
}

// NewHandler returns the HTTP handler for the auth API.
func NewHandler(svc *auth.Service, guard *auth.Guard, codec *cookies.Codec, signer *token.Signer) *Handler {
	return &Handler{svc: svc, guard: guard, codec: codec, signer: signer}
}

// Routes registers all auth endpoints on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	requireAuth := h.guard.Middleware()
	softAuth := h.guard.SoftMiddleware()

	mux.HandleFunc("POST /auth/signup", h.Signup)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("GET /auth/signup", h.renderPage("Signup page endpoint (API mode)"))
	mux.HandleFunc("GET /auth/login", h.renderPage("Login page endpoint (API mode)"))

	mux.Handle("GET /auth/{$}", requireAuth(http.HandlerFunc(h.Protected)))
	mux.Handle("POST /auth/logout", softAuth(http.HandlerFunc(h.Logout)))
	mux.Handle("POST /auth/logout-all", softAuth(http.HandlerFunc(h.LogoutAll)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup registers a new user and immediately logs them in.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decodeCredentials(w, r, &req) {
		return
	}

	result, err := h.svc.Signup(r.Context(), req.Username, req.Password,
		httpx.ClientIPFromContext(r.Context()), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrUsernameTaken):
			writeJSON(w, http.StatusConflict, messageBody("Username already taken"))
		case errors.Is(err, credentials.ErrPasswordTooShort):
			writeJSON(w, http.StatusBadRequest, messageBody(err.Error()))
		default:
			log.Error().Err(err).Msg("Signup failed")
			writeJSON(w, http.StatusInternalServerError, messageBody("Failed to create user"))
		}
		return
	}

	h.codec.Set(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"userId":  result.UserID.String(),
	})
}

// Login authenticates an existing user. Unknown usernames and wrong
// passwords produce an identical response.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decodeCredentials(w, r, &req) {
		return
	}

	result, err := h.svc.Login(r.Context(), req.Username, req.Password,
		httpx.ClientIPFromContext(r.Context()), r.UserAgent())
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, messageBody("Invalid credentials"))
			return
		}
		log.Error().Err(err).Msg("Login failed")
		writeJSON(w, http.StatusInternalServerError, messageBody("Login failed"))
		return
	}

	h.codec.Set(w, result.Token)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"userId":  result.UserID.String(),
	})
}

// Protected is the example resource behind the session guard.
func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "You have accessed a protected route!",
		"user": map[string]string{
			"userId": identity.UserID.String(),
		},
	})
}

// Logout deletes the current session. Requests without a valid session are
// treated as already logged out.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	if err := h.svc.Logout(r.Context(), identity); err != nil {
		log.Error().Err(err).Msg("Logout failed")
		writeJSON(w, http.StatusInternalServerError, messageBody("Logout failed"))
		return
	}

	h.codec.Clear(w)
	writeJSON(w, http.StatusOK, messageBody("Logout successful"))
}

// LogoutAll deletes every session for the current user.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	if _, err := h.svc.LogoutAll(r.Context(), identity); err != nil {
		log.Error().Err(err).Msg("Logout all failed")
		writeJSON(w, http.StatusInternalServerError, messageBody("Logout All failed"))
		return
	}

	h.codec.Clear(w)
	writeJSON(w, http.StatusOK, messageBody("Logged out of all sessions"))
}

// renderPage serves the login/signup page endpoints. A caller presenting a
// token that still verifies is told they are already logged in; session
// lookup is deliberately skipped here, matching the lightweight check on
// page loads.
func (h *Handler) renderPage(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tokenStr, err := h.codec.Read(r); err == nil {
			if _, err := h.signer.Verify(tokenStr); err == nil {
				writeJSON(w, http.StatusOK, messageBody("Already logged in. Redirecting."))
				return
			}
		}
		writeJSON(w, http.StatusOK, messageBody(message))
	}
}

func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request, req *credentialsRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody("Invalid request body"))
		return false
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, messageBody("Username and password are required"))
		return false
	}
	return true
}

func messageBody(message string) map[string]string {
	return map[string]string{"message": message}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response body")
	}
}
