package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/shift-dispatch/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	minWait                  = time.Millisecond
	keyPrefix                = "ratelimit:"
)

// windowScript counts a call in the current one-second window and reports
// whether it fits under ARGV[1].
var windowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], 2)
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps calls per second for each key across every worker
// replica. Keys without a configured limit use the default.
type RedisRateLimiter struct {
	client       goredis.UniversalClient
	defaultLimit int64
	limits       map[string]int64
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewRedisRateLimiter builds a limiter with limitPerSec for every key, overridden
// per key by perKey (e.g. ratelimit.KeySMS).
func NewRedisRateLimiter(client goredis.UniversalClient, limitPerSec int, perKey map[string]int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, limitPerSec, perKey, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client goredis.UniversalClient,
	limitPerSec int,
	perKey map[string]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	limiter := &RedisRateLimiter{
		client:       client,
		defaultLimit: defaultLimitPerSec,
		limits:       make(map[string]int64, len(perKey)),
		now:          nowFn,
		sleep:        sleepFn,
	}
	if limitPerSec > 0 {
		limiter.defaultLimit = int64(limitPerSec)
	}
	for key, limit := range perKey {
		normalized := normalizeKey(key)
		if normalized == "" || limit <= 0 {
			return nil, fmt.Errorf("invalid rate limit %d for key %q", limit, key)
		}
		limiter.limits[normalized] = int64(limit)
	}
	if limiter.now == nil {
		limiter.now = time.Now
	}
	if limiter.sleep == nil {
		limiter.sleep = sleepWithContext
	}

	return limiter, nil
}

// Limit returns the per-second limit applied to key.
func (r *RedisRateLimiter) Limit(key string) int64 {
	if limit, ok := r.limits[normalizeKey(key)]; ok {
		return limit
	}
	return r.defaultLimit
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalized := normalizeKey(key)
	if normalized == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	window := fmt.Sprintf("%s%s:%d", keyPrefix, normalized, r.now().UTC().Unix())
	result, err := windowScript.Run(ctx, r.client, []string{window}, r.Limit(normalized)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit for %q: %w", normalized, err)
	}
	return result == 1, nil
}

// Wait blocks until key has capacity, sleeping to the start of the next window
// after each rejection, or until ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := r.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, untilNextWindow(r.now())); err != nil {
			return err
		}
	}
}

func untilNextWindow(now time.Time) time.Duration {
	wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
	if wait < minWait {
		return minWait
	}
	return wait
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
