package intakestats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClient(rdb, "api-1"), mr
}

func TestFlushBatchAndGetStats(t *testing.T) {
	c, mr := newTestClient(t)
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	b := NewBatch("client-1")
	b.Add(false, "10.0.0.1")
	b.Add(false, "10.0.0.2")
	b.Add(true, "10.0.0.1")
	require.NoError(t, c.FlushBatch(ctx, b))

	now = now.Add(-2 * time.Hour)
	earlier := NewBatch("client-1")
	earlier.Add(false, "10.0.0.3")
	require.NoError(t, c.FlushBatch(ctx, earlier))
	now = now.Add(2 * time.Hour)

	stats, err := c.GetStats(ctx, "client-1")
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalSubmissions)
	assert.Equal(t, int64(1), stats.Duplicates)
	assert.Equal(t, int64(2), stats.SubmissionsLastHour)
	assert.Equal(t, int64(3), stats.SubmissionsLast24h)
	assert.Equal(t, int64(3), stats.UniqueIPsToday)
	assert.Equal(t, "10.0.0.3", stats.LastIP)
	require.NotNil(t, stats.LastSubmissionAt)
	assert.Contains(t, stats.Instances, "api-1")

	assert.True(t, mr.Exists("leads:hourly:client-1:2026030410"))
	assert.Equal(t, 48*time.Hour, mr.TTL("leads:hourly:client-1:2026030410"))
}

func TestGetStats_UnknownClient(t *testing.T) {
	c, _ := newTestClient(t)

	stats, err := c.GetStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSubmissions)
	assert.Nil(t, stats.LastSubmissionAt)
	assert.Empty(t, stats.Instances)
}

func TestCollector_FlushNow(t *testing.T) {
	c, _ := newTestClient(t)
	col := NewCollector(c, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer col.Stop()

	col.Record("client-1", false, "10.0.0.1")
	col.Record("client-1", true, "10.0.0.1")
	col.Record("client-2", false, "10.0.0.9")
	assert.Equal(t, map[string]int64{"client-1": 2, "client-2": 1}, col.Pending())

	col.FlushNow()
	assert.Empty(t, col.Pending())

	stats, err := col.GetStats(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSubmissions)
	assert.Equal(t, int64(1), stats.Duplicates)
}

func TestCollector_KeepsBatchWhenRedisDown(t *testing.T) {
	c, mr := newTestClient(t)
	col := NewCollector(c, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	col.Record("client-1", false, "10.0.0.1")
	mr.Close()
	col.FlushNow()
	assert.Equal(t, map[string]int64{"client-1": 1}, col.Pending())

	col.Record("client-1", false, "10.0.0.2")
	assert.Equal(t, map[string]int64{"client-1": 2}, col.Pending())
}

func TestCollector_StopFlushes(t *testing.T) {
	c, _ := newTestClient(t)
	col := NewCollector(c, time.Hour, nil)

	col.Record("client-1", false, "10.0.0.1")
	col.Stop()

	stats, err := c.GetStats(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSubmissions)
}
