package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/pedrolicio/instagram-carousel-generator/internal/requestctx"
)

// AcquireRateLimits applies the per-key limits to the request in ctx. The
// returned release function is safe to call more than once.
func (c *Container) AcquireRateLimits(ctx context.Context) (func(), error) {
	rc, ok := requestctx.FromContext(ctx)
	if !ok || rc == nil {
		return nil, fmt.Errorf("request context missing")
	}
	if c.RateLimiter == nil || !c.DefaultKeyLimit.Enabled() {
		return func() {}, nil
	}

	releaseKey, err := c.RateLimiter.Acquire(ctx, "key:"+rc.KeyFingerprint, c.DefaultKeyLimit)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(releaseKey) }, nil
}
