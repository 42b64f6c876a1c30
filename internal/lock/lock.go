package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when the key is still held elsewhere once Wait is spent.
	ErrNotAcquired = errors.New("lock: not acquired")
	// ErrLeaseLost is the cancellation cause seen by fn when the lease could not be renewed.
	ErrLeaseLost = errors.New("lock: lease lost")
)

var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`)
	renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

// Locker is a Redis lease lock. The lease is renewed at a third of its TTL
// while the callback runs, so slow holders keep ownership.
type Locker struct {
	R            redis.Cmdable
	RetryBackoff time.Duration
	// Wait bounds how long WithLock keeps retrying. Zero waits until ctx is done.
	Wait time.Duration
}

// minTTL keeps the renew ticker and PEXPIRE argument positive.
const minTTL = 3 * time.Millisecond

// WithLock runs fn while holding key. fn's context is cancelled with
// ErrLeaseLost if another holder takes over the key.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	switch {
	case ttl <= 0:
		ttl = 30 * time.Second
	case ttl < minTTL:
		ttl = minTTL
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()

	held, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	defer close(done)
	go l.renew(held, cancel, done, key, token, ttl)

	return fn(held)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	var deadline <-chan time.Time
	if l.Wait > 0 {
		budget := time.NewTimer(l.Wait)
		defer budget.Stop()
		deadline = budget.C
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-deadline:
			timer.Stop()
			return ErrNotAcquired
		case <-timer.C:
		}
	}
}

func (l Locker) renew(ctx context.Context, cancel context.CancelCauseFunc, done <-chan struct{}, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int64()
			if err == nil && n == 0 {
				cancel(ErrLeaseLost)
				return
			}
		}
	}
}
