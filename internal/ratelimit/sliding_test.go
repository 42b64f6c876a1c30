package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giftshop/internal/ratelimit"
)

func newSliding(t *testing.T, window time.Duration, limit int) (*ratelimit.SlidingWindow, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC)
	return &ratelimit.SlidingWindow{
		Client: client,
		Prefix: "rl:",
		Window: window,
		Max:    limit,
		Now:    func() time.Time { return clock },
	}, mr, &clock
}

func TestSlidingWindowLimitsPerKey(t *testing.T) {
	limiter, mr, clock := newSliding(t, time.Minute, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "inquiry:203.0.113.9")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 1-i, d.Remaining)
		*clock = clock.Add(10 * time.Second)
	}

	d, err := limiter.Allow(ctx, "inquiry:203.0.113.9")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, time.Date(2025, 2, 14, 9, 1, 0, 0, time.UTC), d.ResetAt.UTC(), "oldest hit leaves the window")

	other, err := limiter.Allow(ctx, "inquiry:198.51.100.1")
	require.NoError(t, err)
	require.True(t, other.Allowed)

	members, err := mr.ZMembers("rl:inquiry:203.0.113.9")
	require.NoError(t, err)
	require.Len(t, members, 2, "rejected hits are not recorded")
}

func TestSlidingWindowSlides(t *testing.T) {
	limiter, _, clock := newSliding(t, time.Minute, 1)
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "reviews:ip")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	*clock = clock.Add(59 * time.Second)
	d, err = limiter.Allow(ctx, "reviews:ip")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	*clock = clock.Add(time.Second)
	d, err = limiter.Allow(ctx, "reviews:ip")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestSlidingWindowDisabledWithoutBudget(t *testing.T) {
	d, err := ratelimit.SlidingWindow{}.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
