package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartops/authd/internal/auth"
	"github.com/smartops/authd/internal/cookies"
	"github.com/smartops/authd/internal/credentials"
	"github.com/smartops/authd/internal/httpx"
	memorystore "github.com/smartops/authd/internal/store/memory"
	"github.com/smartops/authd/internal/token"
)

const (
	testIP        = "203.0.113.10"
	testUserAgent = "test-agent/1.0"
)

// newTestHandler wires the full stack against in-memory stores, the same
// composition the server command performs.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	signer, err := token.New(
		[]byte("test-access-secret-min-32-bytes-long"),
		[]byte("test-refresh-secret-min-32-bytes-long"),
		"authd-test")
	require.NoError(t, err)

	codec, err := cookies.New([]byte("test-cookie-secret-min-32-bytes-long"), 30*time.Minute, false)
	require.NoError(t, err)

	sessions := memorystore.NewSessionStore()
	creds := credentials.New(memorystore.NewUserStore(), bcrypt.MinCost)

	svc := auth.NewService(creds, sessions, signer, auth.ServiceConfig{
		AccessTokenTTL: 15 * time.Minute,
		SessionTTL:     30 * time.Minute,
	})
	guard := auth.NewGuard(codec, signer, sessions)
	handler := NewHandler(svc, guard, codec, signer)

	return httpx.ClientIPMiddleware()(handler.Routes())
}

type client struct {
	t       *testing.T
	handler http.Handler
	ip      string
	agent   string
	cookie  *http.Cookie
}

func newClient(t *testing.T, handler http.Handler) *client {
	return &client{t: t, handler: handler, ip: testIP, agent: testUserAgent}
}

// do sends a request carrying the client's fingerprint and current cookie,
// then captures any cookie the server sets back.
func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", c.ip)
	req.Header.Set("User-Agent", c.agent)
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookies.Name {
			if ck.MaxAge < 0 {
				c.cookie = nil
			} else {
				c.cookie = ck
			}
		}
	}

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func credsBody(username, password string) map[string]string {
	return map[string]string{"username": username, "password": password}
}

func TestSignupEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("success sets cookie and logs in", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/signup", credsBody("alice", "password123"))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "Login successful", body["message"])
		require.NotEmpty(t, body["userId"])
		require.NotNil(t, c.cookie)
		require.True(t, c.cookie.HttpOnly)

		// immediately authenticated
		rec = c.do(http.MethodGet, "/auth/", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("duplicate username", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/signup", credsBody("alice", "password456"))

		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "Username already taken", decodeBody(t, rec)["message"])
		require.Nil(t, c.cookie)
	})

	t.Run("short password", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/signup", credsBody("bob", "short"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/signup", credsBody("", "password123"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "Username and password are required", decodeBody(t, rec)["message"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	signup := newClient(t, handler)
	rec := signup.do(http.MethodPost, "/auth/signup", credsBody("alice", "password123"))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("valid credentials", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/login", credsBody("alice", "password123"))

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Login successful", decodeBody(t, rec)["message"])
		require.NotNil(t, c.cookie)
	})

	t.Run("wrong password and unknown user are indistinguishable", func(t *testing.T) {
		c := newClient(t, handler)

		wrongPass := c.do(http.MethodPost, "/auth/login", credsBody("alice", "wrongpassword"))
		unknown := c.do(http.MethodPost, "/auth/login", credsBody("nobody", "password123"))

		require.Equal(t, http.StatusUnauthorized, wrongPass.Code)
		require.Equal(t, http.StatusUnauthorized, unknown.Code)
		require.Equal(t, decodeBody(t, wrongPass)["message"], decodeBody(t, unknown)["message"])
	})
}

func TestProtectedEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("without cookie", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodGet, "/auth/", nil)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Authentication required", decodeBody(t, rec)["message"])
	})

	t.Run("with session", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/signup", credsBody("alice", "password123"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.do(http.MethodGet, "/auth/", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, "You have accessed a protected route!", body["message"])
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		require.NotEmpty(t, user["userId"])
	})
}

func TestHijackDetection(t *testing.T) {
	handler := newTestHandler(t)

	victim := newClient(t, handler)
	rec := victim.do(http.MethodPost, "/auth/signup", credsBody("alice", "password123"))
	require.Equal(t, http.StatusOK, rec.Code)

	// attacker replays the stolen cookie from a different address
	attacker := newClient(t, handler)
	attacker.ip = "198.51.100.99"
	attacker.cookie = victim.cookie

	rec = attacker.do(http.MethodGet, "/auth/", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Security check failed. IP mismatch.", decodeBody(t, rec)["message"])

	// the burned session locks out the legitimate client too
	rec = victim.do(http.MethodGet, "/auth/", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Session expired or invalidated", decodeBody(t, rec)["message"])
}

func TestLogoutEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("logged-in session", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/signup", credsBody("alice", "password123"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.do(http.MethodPost, "/auth/logout", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Logout successful", decodeBody(t, rec)["message"])
		require.Nil(t, c.cookie)

		rec = c.do(http.MethodGet, "/auth/", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("without session is still a success", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/logout", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Logout successful", decodeBody(t, rec)["message"])
	})
}

func TestLogoutAllEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	// three devices logged into the same account
	devices := make([]*client, 3)
	for i := range devices {
		c := newClient(t, handler)
		c.ip = fmt.Sprintf("203.0.113.%d", 10+i)

		var rec *httptest.ResponseRecorder
		if i == 0 {
			rec = c.do(http.MethodPost, "/auth/signup", credsBody("alice", "password123"))
		} else {
			rec = c.do(http.MethodPost, "/auth/login", credsBody("alice", "password123"))
		}
		require.Equal(t, http.StatusOK, rec.Code)
		devices[i] = c
	}

	rec := devices[0].do(http.MethodPost, "/auth/logout-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Logged out of all sessions", decodeBody(t, rec)["message"])

	// every device is locked out on its next request
	for _, c := range devices {
		rec := c.do(http.MethodGet, "/auth/", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestRenderPages(t *testing.T) {
	handler := newTestHandler(t)

	t.Run("anonymous caller", func(t *testing.T) {
		c := newClient(t, handler)

		rec := c.do(http.MethodGet, "/auth/login", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Login page endpoint (API mode)", decodeBody(t, rec)["message"])

		rec = c.do(http.MethodGet, "/auth/signup", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Signup page endpoint (API mode)", decodeBody(t, rec)["message"])
	})

	t.Run("logged-in caller is redirected", func(t *testing.T) {
		c := newClient(t, handler)
		rec := c.do(http.MethodPost, "/auth/signup", credsBody("bob", "password123"))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.do(http.MethodGet, "/auth/login", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Already logged in. Redirecting.", decodeBody(t, rec)["message"])
	})
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)

	c := newClient(t, handler)
	rec := c.do(http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}
