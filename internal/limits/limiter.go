// Package limits enforces per-credential request limits in Redis. Keys are
// API key fingerprints, never the keys themselves.
package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pedrolicio/instagram-carousel-generator/internal/config"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

const (
	windowLength  = time.Minute
	semaphoreTTL  = 5 * time.Minute
	keyPrefixRPM  = "imagend:rpm"
	keyPrefixSema = "imagend:sem"
)

type LimitConfig struct {
	RequestsPerMinute int
	ParallelRequests  int
}

// FromConfig maps the rate_limits configuration section.
func FromConfig(cfg config.RateLimitConfig) LimitConfig {
	return LimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		ParallelRequests:  cfg.ParallelRequests,
	}
}

// Enabled reports whether any limit is configured.
func (c LimitConfig) Enabled() bool {
	return c.RequestsPerMinute > 0 || c.ParallelRequests > 0
}

// LimitError reports an exceeded limit and how long the caller should wait.
type LimitError struct {
	Limit      string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded", e.Limit)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Acquire checks every configured limit for key and returns the function that
// releases the parallel slot. The release function is never nil.
func (l *RateLimiter) Acquire(ctx context.Context, key string, cfg LimitConfig) (func(), error) {
	noop := func() {}
	if l == nil || l.client == nil || !cfg.Enabled() {
		return noop, nil
	}
	if err := l.Allow(ctx, key, cfg); err != nil {
		return noop, err
	}
	return func() {
		// The request context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		l.Release(releaseCtx, key, cfg)
	}, nil
}

func (l *RateLimiter) Allow(ctx context.Context, key string, cfg LimitConfig) error {
	if l == nil || l.client == nil {
		return nil
	}
	if cfg.RequestsPerMinute > 0 {
		if err := l.countCheck(ctx, fmt.Sprintf("%s:%s", keyPrefixRPM, key), cfg.RequestsPerMinute); err != nil {
			return err
		}
	}
	if cfg.ParallelRequests > 0 {
		if err := l.semaphoreAcquire(ctx, fmt.Sprintf("%s:%s", keyPrefixSema, key), cfg.ParallelRequests); err != nil {
			return err
		}
	}
	return nil
}

func (l *RateLimiter) Release(ctx context.Context, key string, cfg LimitConfig) {
	if l == nil || l.client == nil {
		return
	}
	if cfg.ParallelRequests > 0 {
		l.client.Decr(ctx, fmt.Sprintf("%s:%s", keyPrefixSema, key))
	}
}

func (l *RateLimiter) countCheck(ctx context.Context, key string, limit int) error {
	now := l.now().UTC()
	window := now.Unix() / int64(windowLength.Seconds())
	redisKey := fmt.Sprintf("%s:%d", key, window)

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, redisKey, windowLength)
	}
	if int(cnt) > limit {
		end := time.Unix((window+1)*int64(windowLength.Seconds()), 0)
		return &LimitError{Limit: "requests per minute", RetryAfter: end.Sub(now)}
	}
	return nil
}

func (l *RateLimiter) semaphoreAcquire(ctx context.Context, key string, max int) error {
	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, key, semaphoreTTL)
	}
	if int(cnt) > max {
		l.client.Decr(ctx, key)
		return &LimitError{Limit: "parallel requests", RetryAfter: time.Second}
	}
	return nil
}
