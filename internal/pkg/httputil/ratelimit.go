package httputil

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/sendly/internal/pkg/ctxlog"
	"github.com/bissquit/sendly/internal/pkg/metrics"
)

// Counter is a fixed-window counter store. The Redis client implements it.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// RateLimitConfig holds the limit applied per key and window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	KeyFn  func(*http.Request) string
}

// UserKey keys the limit by authenticated user, falling back to the remote address.
func UserKey(r *http.Request) string {
	if id := GetUserID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + r.RemoteAddr
}

// RateLimitMiddleware limits requests per key using a fixed window.
// Counter failures let the request through.
func RateLimitMiddleware(counter Counter, cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.KeyFn == nil {
		cfg.KeyFn = UserKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := fmt.Sprintf("ratelimit:%s", cfg.KeyFn(r))

			count, ttl, err := counter.Increment(r.Context(), key, cfg.Window)
			if err != nil {
				ctxlog.FromContext(r.Context()).Error("rate limit counter failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := cfg.Limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			if int(count) > cfg.Limit {
				metrics.RateLimitRejections.Inc()
				w.Header().Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
				Error(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
