package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tschelli/lead-lander-sub001/common/messaging"
)

func TestJobIdentity(t *testing.T) {
	j := Job{SubmissionID: "s1", AttemptHint: 2}
	assert.Equal(t, "delivery:s1", j.Key())
	assert.Equal(t, "delivery:s1:2", j.MessageID())

	data, err := encodeJob(j)
	require.NoError(t, err)
	assert.JSONEq(t, `{"submissionId":"s1","attemptHint":2}`, string(data))

	got, err := decodeJob(data)
	require.NoError(t, err)
	assert.Equal(t, j, got)

	_, err = decodeJob([]byte(`{"attemptHint":1}`))
	assert.Error(t, err)
	_, err = decodeJob([]byte(`not json`))
	assert.Error(t, err)
}

func TestMemoryQueue_EnqueueAdmitsOncePerSubmission(t *testing.T) {
	q := NewMemoryQueue(NewMemoryAdmission(), time.Hour, 10)
	defer q.Close()
	ctx := context.Background()

	ok, err := q.Enqueue(ctx, Job{SubmissionID: "s1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Enqueue(ctx, Job{SubmissionID: "s1", AttemptHint: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	require.NoError(t, q.Release(ctx, "s1"))
	ok, err = q.Enqueue(ctx, Job{SubmissionID: "s1", AttemptHint: 2})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryQueue_ConsumeAndRetry(t *testing.T) {
	q := NewMemoryQueue(NewMemoryAdmission(), time.Hour, 10)
	defer q.Close()
	ctx := context.Background()

	var calls atomic.Int32
	done := make(chan Job, 1)
	stop, err := q.Consume(ctx, ConsumeOptions{Concurrency: 2}, func(_ context.Context, job Job) error {
		if calls.Add(1) == 1 {
			return messaging.RetryAfter(10*time.Millisecond, errors.New("crm unavailable"))
		}
		done <- job
		return nil
	})
	require.NoError(t, err)
	defer stop()

	_, err = q.Enqueue(ctx, Job{SubmissionID: "s1"})
	require.NoError(t, err)

	select {
	case job := <-done:
		assert.Equal(t, "s1", job.SubmissionID)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryQueue_DepthCountsDelayedRetries(t *testing.T) {
	q := NewMemoryQueue(NewMemoryAdmission(), time.Hour, 10)
	defer q.Close()

	q.schedule(Job{SubmissionID: "s1"}, time.Hour)
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	require.NoError(t, q.Close())
	depth, _ = q.Depth(context.Background())
	assert.Equal(t, 0, depth)
}

func TestMemoryQueue_ConcurrencyBound(t *testing.T) {
	q := NewMemoryQueue(NewMemoryAdmission(), time.Hour, 100)
	defer q.Close()
	ctx := context.Background()

	var (
		inFlight, peak atomic.Int32
		wg             sync.WaitGroup
	)
	wg.Add(20)
	stop, err := q.Consume(ctx, ConsumeOptions{Concurrency: 3}, func(context.Context, Job) error {
		defer wg.Done()
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	defer stop()

	for i := 0; i < 20; i++ {
		_, err := q.Enqueue(ctx, Job{SubmissionID: string(rune('a' + i))})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestMemoryQueue_EnqueueBlockedByFullQueueHonoursContext(t *testing.T) {
	admission := NewMemoryAdmission()
	q := NewMemoryQueue(admission, time.Hour, 1)
	defer q.Close()

	_, err := q.Enqueue(context.Background(), Job{SubmissionID: "s1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := q.Enqueue(ctx, Job{SubmissionID: "s2"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ok, _ = admission.Acquire(context.Background(), JobKey("s2"), time.Hour)
	assert.True(t, ok, "admission released when the enqueue did not happen")
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue(NewMemoryAdmission(), time.Hour, 1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Enqueue(context.Background(), Job{SubmissionID: "s1"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = q.Consume(context.Background(), ConsumeOptions{}, func(context.Context, Job) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
