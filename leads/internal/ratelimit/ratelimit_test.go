package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*RedisRateLimiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewRedisRateLimiter(client, limit, window)
	l.now = func() time.Time { return now }
	return l, mr, &now
}

func TestRedisRateLimiter_SlidingWindow(t *testing.T) {
	l, _, now := newLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := range 3 {
		ok, err := l.Allow(ctx, "c1", "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
		*now = now.Add(time.Second)
	}

	ok, err := l.Allow(ctx, "c1", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other visitors and other clients have their own buckets.
	ok, err = l.Allow(ctx, "c1", "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Allow(ctx, "c2", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)

	*now = now.Add(time.Minute)
	ok, err = l.Allow(ctx, "c1", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRateLimiter_KeyExpires(t *testing.T) {
	l, mr, _ := newLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "c1", "203.0.113.7")
	require.NoError(t, err)

	key := "leads:ratelimit:" + Key("c1", "203.0.113.7")
	require.True(t, mr.Exists(key))
	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists(key))
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	l, mr, _ := newLimiter(t, 1, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "c1", "203.0.113.7")
	assert.Error(t, err)
}

func TestNoOpRateLimiter(t *testing.T) {
	var l RateLimiter = NoOpRateLimiter{}
	for range 10 {
		ok, err := l.Allow(context.Background(), "c1", "")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
