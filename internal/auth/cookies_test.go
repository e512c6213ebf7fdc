package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRefreshTokenCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetRefreshTokenCookie(rec, "tok", 7*24*time.Hour, CookieConfig{Secure: true, SameSite: "strict"})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, RefreshTokenCookie, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/api/auth", c.Path)
	assert.Equal(t, 7*24*60*60, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
}

func TestClearRefreshTokenCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearRefreshTokenCookie(rec, CookieConfig{})

	c := rec.Result().Cookies()[0]
	assert.Equal(t, RefreshTokenCookie, c.Name)
	assert.Empty(t, c.Value)
	assert.Equal(t, -1, c.MaxAge)
	assert.Equal(t, "/api/auth", c.Path)
}

func TestAccessTokenCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetAccessTokenCookie(rec, "acc", 15*time.Minute, CookieConfig{SameSite: "lax"})

	c := rec.Result().Cookies()[0]
	assert.Equal(t, AccessTokenCookie, c.Name)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 900, c.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestGetRefreshTokenCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh-token", nil)
	assert.Empty(t, GetRefreshTokenCookie(req))

	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "abc"})
	assert.Equal(t, "abc", GetRefreshTokenCookie(req))
}

func TestParseSameSite_DefaultsToStrict(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, parseSameSite(""))
	assert.Equal(t, http.SameSiteNoneMode, parseSameSite("none"))
}
