package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// Decision is the outcome of a single limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allower decides whether one more request for key fits its budget.
type Allower interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Handler rejects over-budget callers with 429. Limiter failures are logged
// and the request is let through.
type Handler struct {
	Limiter Allower
	Key     func(*http.Request) string
	Logger  zerolog.Logger
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Key(r)
		d, err := h.Limiter.Allow(r.Context(), key)
		if err != nil {
			logger := obs.LoggerFrom(r.Context(), h.Logger)
			logger.Error().Err(err).Str("key", key).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
		headers.Set("Retry-After", strconv.Itoa(max(wait, 0)))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down",
			map[string]int{"retryAfterSeconds": max(wait, 0)})
	})
}

// ByClientIP keys requests by the caller's address under the given scope.
func ByClientIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}
