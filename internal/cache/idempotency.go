// Package cache replays successful generation responses for repeated
// Idempotency-Key headers.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "imagend:idem"

// IdempotencyCache stores serialized responses keyed by credential
// fingerprint and idempotency key, so two callers never share an entry.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyCache(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

// Enabled reports whether the cache is backed by Redis.
func (c *IdempotencyCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *IdempotencyCache) Get(ctx context.Context, fingerprint, key string) ([]byte, bool) {
	if !c.Enabled() || key == "" {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.prefixed(fingerprint, key)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *IdempotencyCache) Set(ctx context.Context, fingerprint, key string, value []byte) {
	if !c.Enabled() || key == "" || len(value) == 0 {
		return
	}
	c.client.Set(ctx, c.prefixed(fingerprint, key), value, c.ttl)
}

func (c *IdempotencyCache) prefixed(fingerprint, key string) string {
	return keyPrefix + ":" + fingerprint + ":" + key
}
