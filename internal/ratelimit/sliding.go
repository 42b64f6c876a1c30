package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims the log to the window and records the hit only when
// the caller is still under the limit, so rejected requests never extend a ban.
var slidingScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, limit - count, reset}
`)

// SlidingWindow counts hits per key in a Redis sorted set scored by arrival
// time in milliseconds.
type SlidingWindow struct {
	Client redis.Scripter
	Prefix string
	Window time.Duration
	Max    int
	Now    func() time.Time
}

func (s SlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	at := now()
	if s.Max <= 0 || s.Window <= 0 {
		return Decision{Allowed: true, ResetAt: at}, nil
	}
	if s.Client == nil {
		return Decision{}, errors.New("ratelimit: redis client not configured")
	}

	res, err := slidingScript.Run(ctx, s.Client, []string{s.Prefix + key},
		at.UnixMilli(), s.Window.Milliseconds(), s.Max, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, errors.New("ratelimit: unexpected script reply")
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     s.Max,
		Remaining: int(max(res[1], 0)),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
