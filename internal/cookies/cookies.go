// Package cookies manages the signed bearer cookie that carries the access
// token. The cookie value is HMAC-signed with a secret independent of the
// token-signing secret, so a token lifted from elsewhere cannot simply be
// dropped into a cookie.
package cookies

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Name is the bearer cookie name.
const Name = "token"

// ErrInvalidCookie is returned when the cookie is absent, malformed, or its
// signature does not verify.
var ErrInvalidCookie = errors.New("invalid cookie")

// Codec signs cookie values on write and verifies them on read.
type Codec struct {
	secret []byte
	maxAge time.Duration
	secure bool
}

// New returns a Codec. secret must be at least 32 bytes. secure controls the
// cookie Secure attribute and should be true in production.
func New(secret []byte, maxAge time.Duration, secure bool) (*Codec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("cookie signing secret must be at least 32 bytes")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("cookie max age must be greater than 0")
	}
	return &Codec{secret: secret, maxAge: maxAge, secure: secure}, nil
}

// encode returns value.sig with a base64url HMAC-SHA256 signature.
func (c *Codec) encode(value string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(value))
	return value + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// decode verifies the signature using constant-time comparison and returns
// the wrapped value.
func (c *Codec) decode(signed string) (string, error) {
	idx := strings.LastIndex(signed, ".")
	if idx < 0 {
		return "", ErrInvalidCookie
	}

	value := signed[:idx]
	receivedSig, err := base64.RawURLEncoding.DecodeString(signed[idx+1:])
	if err != nil {
		return "", ErrInvalidCookie
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(value))
	if !hmac.Equal(receivedSig, mac.Sum(nil)) {
		return "", ErrInvalidCookie
	}

	return value, nil
}

// Set writes the bearer cookie carrying the signed token value.
func (c *Codec) Set(w http.ResponseWriter, tokenStr string) {
	http.SetCookie(w, &http.Cookie{
		Name:     Name,
		Value:    c.encode(tokenStr),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.maxAge.Seconds()),
	})
}

// Clear expires the bearer cookie. Security-relevant rejections always clear
// the cookie so a stale or compromised token cannot be resubmitted unchanged.
func (c *Codec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read extracts and verifies the bearer cookie from a request, returning the
// wrapped token string. Returns http.ErrNoCookie when the cookie is absent
// and ErrInvalidCookie when the signature does not verify.
func (c *Codec) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(Name)
	if err != nil {
		return "", err
	}

	return c.decode(cookie.Value)
}
