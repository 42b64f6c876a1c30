package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// Layered is a two-tier JSON cache: a bounded in-process LRU in front of Redis.
// Each instance is labelled by name in the cache lookup metrics.
type Layered struct {
	name   string
	client redis.Cmdable
	ttl    time.Duration
	local  *expirable.LRU[string, []byte]
}

// NewLayered constructs a cache helper. localSize <= 0 disables the in-process tier.
func NewLayered(name string, client redis.Cmdable, ttl time.Duration, localSize int) *Layered {
	c := &Layered{name: name, client: client, ttl: ttl}
	if localSize > 0 && ttl > 0 {
		c.local = expirable.NewLRU[string, []byte](localSize, nil, ttl)
	}
	return c
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Layered) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || key == "" {
		return false, nil
	}
	if c.local != nil {
		if data, ok := c.local.Get(key); ok {
			obs.CountCache(c.name, "local", "hit")
			return true, json.Unmarshal(data, dst)
		}
		obs.CountCache(c.name, "local", "miss")
	}
	if c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			obs.CountCache(c.name, "redis", "miss")
			return false, nil
		}
		obs.CountCache(c.name, "redis", "error")
		return false, err
	}
	obs.CountCache(c.name, "redis", "hit")
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	if c.local != nil {
		c.local.Add(key, data)
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it in both tiers with the configured TTL.
func (c *Layered) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.local != nil {
		c.local.Add(key, data)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate drops keys from both tiers.
func (c *Layered) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	if c.local != nil {
		for _, k := range keys {
			c.local.Remove(k)
		}
	}
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
