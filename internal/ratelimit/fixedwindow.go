package ratelimit

import (
	"context"
	"errors"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// FixedWindow counts hits per key in fixed periods using a ulule limiter store,
// either Redis or in-process memory.
type FixedWindow struct {
	Limiter *limiter.Limiter
}

// NewFixedWindow builds a fixed window limiter over store from a formatted rate such as "120-M".
func NewFixedWindow(store limiter.Store, formatted string) (FixedWindow, error) {
	if store == nil {
		return FixedWindow{}, errors.New("ratelimit: limiter store is required")
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return FixedWindow{}, err
	}
	return FixedWindow{Limiter: limiter.New(store, rate)}, nil
}

// Rate returns the configured period and request budget.
func (f FixedWindow) Rate() (time.Duration, int) {
	if f.Limiter == nil {
		return 0, 0
	}
	return f.Limiter.Rate.Period, int(f.Limiter.Rate.Limit)
}

func (f FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if f.Limiter == nil {
		return Decision{}, errors.New("ratelimit: fixed window limiter not configured")
	}
	lctx, err := f.Limiter.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}
