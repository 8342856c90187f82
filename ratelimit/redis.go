package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript mirrors step() so that every instance sharing the Redis
// backend applies the same transition atomically.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local block = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'count', 'reset_at', 'blocked')
local count = tonumber(state[1])
local resetAt = tonumber(state[2])

if count == nil or resetAt == nil or now > resetAt then
  resetAt = now + window
  redis.call('HSET', key, 'count', 1, 'window_start', now, 'reset_at', resetAt, 'blocked', 0)
  redis.call('PEXPIRE', key, window)
  return {1, max - 1, resetAt}
end

if state[3] == '1' then
  return {0, 0, resetAt}
end

if count >= max then
  resetAt = now + block
  redis.call('HSET', key, 'blocked', 1, 'reset_at', resetAt)
  redis.call('PEXPIRE', key, block)
  return {0, 0, resetAt}
end

count = redis.call('HINCRBY', key, 'count', 1)
return {1, max - count, resetAt}
`)

// RedisLimiter stores records as Redis hashes so several engine instances
// enforce one shared budget per identifier.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLimiter returns a limiter using keys "<prefix>:<identifier>".
// An empty prefix defaults to "rl"; a nil clock means time.Now.
func NewRedisLimiter(client redis.UniversalClient, prefix string, now func() time.Time) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, prefix: prefix, now: now}
}

func (l *RedisLimiter) key(identifier string) string {
	return l.prefix + ":" + identifier
}

// Check applies one attempt for identifier.
func (l *RedisLimiter) Check(ctx context.Context, identifier string, p Policy) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}

	now := l.now().UnixMilli()
	res, err := checkScript.Run(ctx, l.client, []string{l.key(identifier)},
		now,
		p.MaxAttempts,
		p.Window.Milliseconds(),
		p.Block.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply length %d", ErrBackendUnavailable, len(res))
	}

	return Decision{
		Allowed:      res[0] == 1,
		AttemptsLeft: int(res[1]),
		ResetAt:      time.UnixMilli(res[2]),
	}, nil
}

// Reset deletes the identifier's record.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) error {
	if err := l.client.Del(ctx, l.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
