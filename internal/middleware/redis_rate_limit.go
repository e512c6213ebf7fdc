package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/farmtrack/internal/metrics"
	pkghttp "github.com/BradenHooton/farmtrack/pkg/http"
)

// RedisRateLimiter is a fixed-window limiter whose counters live in Redis,
// so every API instance shares one budget per client.
type RedisRateLimiter struct {
	client  redis.UniversalClient
	prefix  string
	config  RateLimitConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRedisRateLimiter creates a limiter storing counters under prefix
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, config RateLimitConfig, logger *slog.Logger, m *metrics.Metrics) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:  client,
		prefix:  prefix,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

// Allow counts one request for key and reports whether it is within the
// budget. When it is not, the remaining lifetime of the window is returned.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit increment: %w", err)
	}

	// The window starts with the first hit
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.config.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	if count <= int64(l.config.Requests) {
		return true, 0, nil
	}

	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.config.Window
	}
	return false, ttl, nil
}

// Middleware limits requests by client IP. Redis failures let the request
// through and are logged.
func (l *RedisRateLimiter) Middleware(ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)

			allowed, retryAfter, err := l.Allow(r.Context(), ip)
			if err != nil {
				l.logger.Error("rate limiter unavailable", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				l.metrics.RateLimited("redis")
				writeRateLimited(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
