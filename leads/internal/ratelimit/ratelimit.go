// Package ratelimit throttles the public submission endpoint per client and visitor IP.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tschelli/lead-lander-sub001/leads/internal/metrics"
)

type RateLimiter interface {
	// Allow records one request for clientID from ip and reports whether it fits the window.
	Allow(ctx context.Context, clientID, ip string) (bool, error)
}

// Key is the limiter bucket of a client and visitor.
func Key(clientID, ip string) string {
	return clientID + ":" + ip
}

// slidingWindow trims the sorted set to the window, then admits the request
// if fewer than limit members remain.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, ARGV[5])
	redis.call('PEXPIRE', key, ttl_ms)
	return 1
end
return 0
`)

type RedisRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisRateLimiter allows limit requests per window for each key.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, clientID, ip string) (bool, error) {
	now := r.now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	member := uuid.NewString()

	result, err := slidingWindow.Run(ctx, r.client,
		[]string{"leads:ratelimit:" + Key(clientID, ip)},
		now, windowStart, r.limit, r.window.Milliseconds(), member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed := result == 1
	if !allowed {
		metrics.RateLimitHits.Inc()
	}
	return allowed, nil
}

// NoOpRateLimiter always allows requests.
type NoOpRateLimiter struct{}

func (NoOpRateLimiter) Allow(context.Context, string, string) (bool, error) {
	return true, nil
}
