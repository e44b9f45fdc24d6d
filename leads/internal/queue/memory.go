package queue

import (
	"context"
	"sync"
	"time"

	"github.com/tschelli/lead-lander-sub001/common/messaging"
)

// MemoryQueue is an in-process Queue for single-binary deployments and tests.
// Jobs do not survive a restart; the backfill sweep re-enqueues them.
type MemoryQueue struct {
	admission Admission
	ttl       time.Duration
	ready     chan Job
	done      chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewMemoryQueue returns a queue holding up to capacity ready jobs.
func NewMemoryQueue(admission Admission, admissionTTL time.Duration, capacity int) *MemoryQueue {
	if capacity < 1 {
		capacity = 1024
	}
	return &MemoryQueue{
		admission: admission,
		ttl:       admissionTTL,
		ready:     make(chan Job, capacity),
		done:      make(chan struct{}),
		timers:    make(map[*time.Timer]struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	if q.isClosed() {
		return false, ErrClosed
	}
	ok, err := q.admission.Acquire(ctx, job.Key(), q.ttl)
	if err != nil || !ok {
		return false, err
	}

	select {
	case q.ready <- job:
		return true, nil
	case <-ctx.Done():
		_ = q.admission.Release(context.WithoutCancel(ctx), job.Key())
		return false, ctx.Err()
	case <-q.done:
		return false, ErrClosed
	}
}

func (q *MemoryQueue) Release(ctx context.Context, submissionID string) error {
	return q.admission.Release(ctx, JobKey(submissionID))
}

func (q *MemoryQueue) Consume(ctx context.Context, opts ConsumeOptions, handler Handler) (func(), error) {
	if q.isClosed() {
		return nil, ErrClosed
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case job := <-q.ready:
					if err := handler(ctx, job); err != nil {
						q.schedule(job, messaging.RetryDelay(err, opts.RetryDelay))
					}
				}
			}
		}()
	}

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

// schedule puts job back on the ready channel after delay.
func (q *MemoryQueue) schedule(job Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()

		select {
		case q.ready <- job:
		case <-q.done:
		}
	})
	q.timers[t] = struct{}{}
}

func (q *MemoryQueue) Depth(context.Context) (int, error) {
	q.mu.Lock()
	delayed := len(q.timers)
	q.mu.Unlock()
	return len(q.ready) + delayed, nil
}

func (q *MemoryQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops pending retries. Jobs still waiting are dropped.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	close(q.done)
	return nil
}
