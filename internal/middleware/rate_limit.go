package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/farmtrack/internal/metrics"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

const rateLimitMessage = "Too many requests from this IP, please try again later."

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit returns the default budget of the public auth
// endpoints: 100 requests per client IP per 10 minutes.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 100,
		Window:   10 * time.Minute,
	}
}

// DefaultLoginRateLimit returns the default budget of the login endpoint:
// 5 requests per client IP per 15 minutes.
func DefaultLoginRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 5,
		Window:   15 * time.Minute,
	}
}

// RateLimitByIP creates an in-process limiter keyed by client IP. httprate
// counts with a sliding window, so a burst at the end of one window still
// weighs on the start of the next. Forwarding headers count only from
// trusted proxies.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig, m *metrics.Metrics) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			m.RateLimited("memory")
			writeRateLimited(w, config.Window)
		}),
	)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int((retryAfter+time.Second-1)/time.Second)))
	}
	pkghttp.WriteTooManyRequests(w, rateLimitMessage)
}
