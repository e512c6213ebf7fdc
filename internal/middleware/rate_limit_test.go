package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimitByIP_BlocksAfterBudget(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{Requests: 3, Window: time.Minute}, nil, nil)(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, requestFrom("198.51.100.7:4000"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("198.51.100.7:4001"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Other clients keep their own budget
	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("198.51.100.8:4000"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitByIP_IgnoresSpoofedForwardingHeaders(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{Requests: 1, Window: time.Minute}, nil, nil)(okHandler())

	first := requestFrom("198.51.100.7:4000")
	first.Header.Set("X-Forwarded-For", "203.0.113.1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, first)
	assert.Equal(t, http.StatusOK, w.Code)

	second := requestFrom("198.51.100.7:4000")
	second.Header.Set("X-Forwarded-For", "203.0.113.2")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, second)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitByIP_TrustedProxy(t *testing.T) {
	ipConfig := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	h := RateLimitByIP(RateLimitConfig{Requests: 1, Window: time.Minute}, ipConfig, nil)(okHandler())

	for _, client := range []string{"203.0.113.1", "203.0.113.2"} {
		req := requestFrom("10.0.0.5:4000")
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, client)
	}
}
