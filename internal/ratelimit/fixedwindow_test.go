package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/backend-giftshop/internal/ratelimit"
)

func TestFixedWindowLimitsPerKey(t *testing.T) {
	fw := ratelimit.FixedWindow{Limiter: limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := fw.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 2, d.Limit)
	}
	d, err := fw.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)

	d, err = fw.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestFixedWindowBehindMiddleware(t *testing.T) {
	fw := ratelimit.FixedWindow{Limiter: limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 1})}
	h := ratelimit.Handler{Limiter: fw, Key: ratelimit.ByClientIP("analytics"), Logger: zerolog.Nop()}
	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/events", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	rr := httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	next.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	other := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/events", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.2")
	rr = httptest.NewRecorder()
	next.ServeHTTP(rr, other)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestNewFixedWindowParsesRate(t *testing.T) {
	fw, err := ratelimit.NewFixedWindow(memory.NewStore(), "120-M")
	require.NoError(t, err)
	window, budget := fw.Rate()
	require.Equal(t, time.Minute, window)
	require.Equal(t, 120, budget)

	_, err = ratelimit.NewFixedWindow(memory.NewStore(), "often")
	require.Error(t, err)
	_, err = ratelimit.NewFixedWindow(nil, "120-M")
	require.Error(t, err)
}
