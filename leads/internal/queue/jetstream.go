package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tschelli/lead-lander-sub001/common/messaging"
	natsclient "github.com/tschelli/lead-lander-sub001/common/messaging/nats"
)

// JetStreamConfig names the stream and durable consumer backing the queue.
type JetStreamConfig struct {
	Stream        string
	Subject       string
	Consumer      string
	AckWait       time.Duration
	MaxAckPending int
	AdmissionTTL  time.Duration
}

// JetStreamQueue stores jobs in a JetStream work-queue stream. Messages carry
// the job's MessageID so the broker drops re-publishes inside its duplicate window.
type JetStreamQueue struct {
	client    *natsclient.JetStreamClient
	admission Admission
	cfg       JetStreamConfig
	logger    *slog.Logger
}

// NewJetStreamQueue ensures the stream and consumer exist.
func NewJetStreamQueue(ctx context.Context, client *natsclient.JetStreamClient, admission Admission, cfg JetStreamConfig, logger *slog.Logger) (*JetStreamQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := client.CreateOrUpdateStream(ctx, natsclient.LeadDeliveryStream(cfg.Stream, cfg.Subject)); err != nil {
		return nil, err
	}
	consumer := natsclient.DispatcherConsumer(cfg.Consumer, cfg.Subject, cfg.AckWait, cfg.MaxAckPending)
	if _, err := client.CreateOrUpdateConsumer(ctx, cfg.Stream, consumer); err != nil {
		return nil, err
	}
	return &JetStreamQueue{client: client, admission: admission, cfg: cfg, logger: logger}, nil
}

func (q *JetStreamQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	ok, err := q.admission.Acquire(ctx, job.Key(), q.cfg.AdmissionTTL)
	if err != nil || !ok {
		return false, err
	}

	data, err := encodeJob(job)
	if err != nil {
		_ = q.admission.Release(ctx, job.Key())
		return false, err
	}
	msg := &messaging.Message{
		Subject: q.cfg.Subject,
		Data:    data,
		MsgID:   job.MessageID(),
		Headers: map[string]string{messaging.HeaderJobKey: job.Key()},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Headers))

	duplicate, err := q.client.Publish(ctx, msg)
	if err != nil {
		_ = q.admission.Release(context.WithoutCancel(ctx), job.Key())
		return false, fmt.Errorf("failed to enqueue %s: %w", job.Key(), err)
	}
	return !duplicate, nil
}

func (q *JetStreamQueue) Release(ctx context.Context, submissionID string) error {
	return q.admission.Release(ctx, JobKey(submissionID))
}

func (q *JetStreamQueue) Consume(ctx context.Context, opts ConsumeOptions, handler Handler) (func(), error) {
	opts = opts.withDefaults()
	return q.client.ConsumeMessages(ctx, q.cfg.Stream, q.cfg.Consumer, natsclient.ConsumeOptions{
		Concurrency: opts.Concurrency,
		RetryDelay:  opts.RetryDelay,
		Logger:      q.logger,
	}, func(ctx context.Context, msg *messaging.Message) error {
		job, err := decodeJob(msg.Data)
		if err != nil {
			// Acked and dropped: redelivery cannot fix a malformed payload.
			q.logger.Error("dropping undecodable delivery job",
				slog.String("msg_id", msg.MsgID),
				slog.String("error", err.Error()))
			return nil
		}
		if msg.Headers != nil {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Headers))
		}
		return handler(ctx, job)
	})
}

func (q *JetStreamQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.PendingMessages(ctx, q.cfg.Stream)
	return int(n), err
}

// Close is a no-op; the NATS connection belongs to the caller.
func (q *JetStreamQueue) Close() error {
	return nil
}
