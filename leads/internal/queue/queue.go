// Package queue carries delivery jobs from intake and the admin surface to the
// dispatcher. At most one job per submission is live at a time: enqueueing is
// gated by an Admission that is held until the dispatcher releases it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrClosed = errors.New("queue closed")

// Job asks the dispatcher to deliver one submission.
type Job struct {
	SubmissionID string `json:"submissionId"`
	// AttemptHint is the attempt number the producer expects next. The
	// dispatcher recounts recorded attempts; the hint only tells a requeued
	// job's message apart from the original one.
	AttemptHint int `json:"attemptHint"`
}

// JobKey is the admission key of a submission's delivery job.
func JobKey(submissionID string) string {
	return "delivery:" + submissionID
}

func (j Job) Key() string {
	return JobKey(j.SubmissionID)
}

// MessageID is the broker deduplication id of the job.
func (j Job) MessageID() string {
	return fmt.Sprintf("%s:%d", j.Key(), j.AttemptHint)
}

func encodeJob(j Job) ([]byte, error) {
	return json.Marshal(j)
}

func decodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	if j.SubmissionID == "" {
		return Job{}, errors.New("job has no submission id")
	}
	return j, nil
}

// Handler processes one job. nil completes it. An error redelivers it after
// the delay carried by messaging.RetryAfter, or the consumer default.
type Handler func(ctx context.Context, job Job) error

type ConsumeOptions struct {
	Concurrency int
	RetryDelay  time.Duration
}

func (o ConsumeOptions) withDefaults() ConsumeOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	return o
}

// Queue is a durable or in-process delivery job queue.
type Queue interface {
	// Enqueue admits and stores job. It returns false without error when a job
	// for the same submission is already live.
	Enqueue(ctx context.Context, job Job) (bool, error)

	// Release drops the admission of the submission's job once it reached a
	// terminal state or was skipped, so a later requeue can enqueue again.
	Release(ctx context.Context, submissionID string) error

	// Consume runs handler for jobs until ctx is cancelled or stop is called.
	Consume(ctx context.Context, opts ConsumeOptions, handler Handler) (stop func(), err error)

	// Depth is the number of jobs waiting, including delayed retries.
	Depth(ctx context.Context) (int, error)

	Close() error
}
