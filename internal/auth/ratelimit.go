package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds public API traffic per project using Redis INCR + EXPIRE.
// The limit and window are read per-request so admin settings updates take
// effect without a restart.
type RateLimiter struct {
	redis  *redis.Client
	limits func() (max int, window time.Duration)
}

// NewRateLimiter creates a rate limiter. limits returns the current cap and
// window (a settings snapshot read).
func NewRateLimiter(rdb *redis.Client, limits func() (int, time.Duration)) *RateLimiter {
	return &RateLimiter{redis: rdb, limits: limits}
}

// Allow records one request for the given subject and reports whether it is
// within the window cap. Redis errors fail open — rate limiting is a
// protection, not an availability dependency.
func (rl *RateLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	max, window := rl.limits()
	key := fmt.Sprintf("api_ratelimit:%s", subject)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return true, fmt.Errorf("incrementing rate limit: %w", err)
	}
	if count == 1 {
		rl.redis.Expire(ctx, key, window)
	}
	return count <= int64(max), nil
}

// Middleware enforces the rate limit on public API routes, keyed by the
// resolved project.
func (rl *RateLimiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pc := ProjectFromContext(r.Context())
			if pc == nil {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := rl.Allow(r.Context(), pc.ProjectID.String())
			if err != nil {
				logger.Warn("rate limit check failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				respondErr(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
