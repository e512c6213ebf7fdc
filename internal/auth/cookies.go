package auth

import (
	"net/http"
	"time"
)

const (
	RefreshTokenCookie = "refresh_token"
	AccessTokenCookie  = "access_token"

	// The refresh cookie is only sent to the auth endpoints that consume it.
	refreshCookiePath = "/api/auth"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

func (c CookieConfig) cookie(name, path, value string, maxAge time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: parseSameSite(c.SameSite),
	}
	if maxAge > 0 {
		ck.MaxAge = int(maxAge / time.Second)
		ck.Expires = time.Now().Add(maxAge)
	} else {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	}
	return ck
}

// SetRefreshTokenCookie stores the refresh token in an HTTP-only cookie
// scoped to the auth endpoints.
func SetRefreshTokenCookie(w http.ResponseWriter, token string, maxAge time.Duration, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(RefreshTokenCookie, refreshCookiePath, token, maxAge))
}

func ClearRefreshTokenCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(RefreshTokenCookie, refreshCookiePath, "", 0))
}

// SetAccessTokenCookie stores the access token for clients that do not send
// an Authorization header.
func SetAccessTokenCookie(w http.ResponseWriter, token string, maxAge time.Duration, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(AccessTokenCookie, "/", token, maxAge))
}

func ClearAccessTokenCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, cfg.cookie(AccessTokenCookie, "/", "", 0))
}

// GetRefreshTokenCookie returns the refresh cookie value, or "" if absent.
func GetRefreshTokenCookie(r *http.Request) string {
	c, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
