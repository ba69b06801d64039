package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyCacheRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	c := NewIdempotencyCache(client, time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "fp1", "req-1")
	require.False(t, ok)

	c.Set(ctx, "fp1", "req-1", []byte(`{"image":"QUJD"}`))
	got, ok := c.Get(ctx, "fp1", "req-1")
	require.True(t, ok)
	require.JSONEq(t, `{"image":"QUJD"}`, string(got))

	_, ok = c.Get(ctx, "fp2", "req-1")
	require.False(t, ok, "entries are scoped per credential")

	server.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "fp1", "req-1")
	require.False(t, ok, "entry should expire")
}

func TestIdempotencyCacheDisabled(t *testing.T) {
	var c *IdempotencyCache
	require.False(t, c.Enabled())
	c.Set(context.Background(), "fp", "k", []byte("x"))
	_, ok := c.Get(context.Background(), "fp", "k")
	require.False(t, ok)

	c = NewIdempotencyCache(nil, 0)
	require.False(t, c.Enabled())
}
