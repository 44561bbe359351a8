package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key identifies one counter.
type Key struct {
	Identifier     string
	IdentifierType string
	Purpose        string
}

// Hit is the state of a counter right after an increment.
type Hit struct {
	Count       int64
	WindowStart time.Time
	ResetAt     time.Time
}

// Counter increments the counter for key inside a window of the given length.
// Reset drops the counter so the next Hit starts a fresh window.
type Counter interface {
	Hit(ctx context.Context, key Key, window time.Duration) (Hit, error)
	Reset(ctx context.Context, key Key) error
}

// hitLua increments the counter and starts the window on the first hit.
// KEYS[1] = counter key
// ARGV[1] = window in milliseconds
//
// Returns {count, remaining ttl in ms}.
var hitLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Limiter is a Redis-backed [Counter].
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a [Limiter] storing its counters under prefix.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ca"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// Hit records one attempt for key.
func (l *Limiter) Hit(ctx context.Context, key Key, window time.Duration) (Hit, error) {
	if window <= 0 {
		return Hit{}, ErrInvalidPolicy
	}

	res, err := hitLua.Run(ctx, l.redis, []string{l.key(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Hit{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Hit{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	resetAt := l.now().Add(time.Duration(res[1]) * time.Millisecond)
	return Hit{
		Count:       res[0],
		WindowStart: resetAt.Add(-window),
		ResetAt:     resetAt,
	}, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key Key) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(k Key) string {
	return l.prefix + ":rl:" + k.Purpose + ":" + k.IdentifierType + ":" + k.Identifier
}
