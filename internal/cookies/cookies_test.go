package cookies

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-cookie-secret-min-32-bytes-long")

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(testSecret, 30*time.Minute, false)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Run("short secret", func(t *testing.T) {
		_, err := New([]byte("short"), 30*time.Minute, false)
		require.Error(t, err)
	})

	t.Run("zero max age", func(t *testing.T) {
		_, err := New(testSecret, 0, false)
		require.Error(t, err)
	})
}

func TestSetAndRead(t *testing.T) {
	codec := newTestCodec(t)

	rec := httptest.NewRecorder()
	codec.Set(rec, "some-token-value")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, Name, cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	require.Equal(t, int((30 * time.Minute).Seconds()), cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])

	value, err := codec.Read(req)
	require.NoError(t, err)
	require.Equal(t, "some-token-value", value)
}

func TestReadRejectsTampering(t *testing.T) {
	codec := newTestCodec(t)

	rec := httptest.NewRecorder()
	codec.Set(rec, "some-token-value")
	cookie := rec.Result().Cookies()[0]

	t.Run("modified value", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: Name, Value: "other" + cookie.Value[5:]})

		_, err := codec.Read(req)
		require.ErrorIs(t, err, ErrInvalidCookie)
	})

	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: Name, Value: "some-token-value"})

		_, err := codec.Read(req)
		require.ErrorIs(t, err, ErrInvalidCookie)
	})

	t.Run("different secret", func(t *testing.T) {
		other, err := New([]byte("other-cookie-secret-min-32-bytes-xx"), 30*time.Minute, false)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)

		_, err = other.Read(req)
		require.ErrorIs(t, err, ErrInvalidCookie)
	})
}

func TestReadMissingCookie(t *testing.T) {
	codec := newTestCodec(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := codec.Read(req)
	require.ErrorIs(t, err, http.ErrNoCookie)
}

func TestClear(t *testing.T) {
	codec := newTestCodec(t)

	rec := httptest.NewRecorder()
	codec.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, Name, cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Equal(t, -1, cookies[0].MaxAge)
}
