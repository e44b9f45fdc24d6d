// Package messaging defines the broker-neutral message and handler types used by
// the delivery queue. The NATS JetStream implementation lives in messaging/nats.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is a message received from or sent to a message broker.
type Message struct {
	Subject string
	Data    []byte

	// MsgID is the broker-side deduplication id. Publishing the same MsgID twice
	// inside the broker's duplicate window stores the message once.
	MsgID string

	// Headers carries optional key-value metadata (trace context, etc.).
	Headers map[string]string

	// Deliveries is how many times the broker has handed this message out, starting at 1.
	Deliveries uint64

	Timestamp time.Time
}

// MessageHandler processes a received message.
// nil acknowledges it. A *RetryError asks for redelivery after its delay; any
// other error asks for redelivery after the consumer's default delay.
type MessageHandler func(ctx context.Context, msg *Message) error

// RetryError requests delayed redelivery of the message being handled.
type RetryError struct {
	Delay time.Duration
	Err   error
}

func (e *RetryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retry after %s", e.Delay)
	}
	return fmt.Sprintf("retry after %s: %v", e.Delay, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// RetryAfter wraps err so the consumer redelivers the message after d.
func RetryAfter(d time.Duration, err error) error {
	return &RetryError{Delay: d, Err: err}
}

// RetryDelay extracts the requested redelivery delay from err, or fallback.
func RetryDelay(err error, fallback time.Duration) time.Duration {
	var re *RetryError
	if errors.As(err, &re) && re.Delay > 0 {
		return re.Delay
	}
	return fallback
}
