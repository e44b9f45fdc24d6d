package seeder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tschelli/lead-lander-sub001/cli/internal/client"
)

// Submitter posts one lead. *client.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, lead client.SubmissionInput) (*client.SubmitResult, error)
}

// Stats summarizes a seeding run.
type Stats struct {
	Created    int64
	Duplicates int64
	Failed     int64
	// Errors keeps the first few failures for display.
	Errors []error
}

const maxKeptErrors = 5

type Runner struct {
	Config    *Config
	Submitter Submitter
	// Progress, if set, is called after every completed request.
	Progress func(done, total int)
}

func NewRunner(cfg *Config, submitter Submitter) *Runner {
	return &Runner{Config: cfg, Submitter: submitter}
}

// Run generates Count leads and submits them with Concurrency workers. It stops
// early when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	if err := r.Config.Validate(); err != nil {
		return nil, err
	}
	d := r.Config.Defaults
	gen := NewGenerator(r.Config)

	leads := make(chan client.SubmissionInput)
	stats := &Stats{}
	var (
		mu   sync.Mutex
		done atomic.Int64
		wg   sync.WaitGroup
	)

	for i := 0; i < d.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lead := range leads {
				res, err := r.Submitter.Submit(ctx, lead)
				switch {
				case err != nil:
					atomic.AddInt64(&stats.Failed, 1)
					mu.Lock()
					if len(stats.Errors) < maxKeptErrors {
						stats.Errors = append(stats.Errors, err)
					}
					mu.Unlock()
				case res.Duplicate:
					atomic.AddInt64(&stats.Duplicates, 1)
				default:
					atomic.AddInt64(&stats.Created, 1)
				}
				n := done.Add(1)
				if r.Progress != nil {
					r.Progress(int(n), d.Count)
				}
			}
		}()
	}

	var err error
produce:
	for i := 0; i < d.Count; i++ {
		select {
		case leads <- gen.Next():
		case <-ctx.Done():
			err = ctx.Err()
			break produce
		}
		if d.Interval > 0 && i < d.Count-1 {
			select {
			case <-time.After(d.Interval):
			case <-ctx.Done():
				err = ctx.Err()
				break produce
			}
		}
	}
	close(leads)
	wg.Wait()

	return stats, err
}
