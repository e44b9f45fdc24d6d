package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tschelli/lead-lander-sub001/common/messaging"
)

// JetStreamClient extends Client with JetStream persistence capabilities.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64

	// Duplicates is the window in which a repeated Nats-Msg-Id is dropped.
	Duplicates time.Duration

	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a JetStream consumer configuration.
type ConsumerConfig struct {
	Name          string
	FilterSubject string
	AckWait       time.Duration

	// MaxDeliver bounds broker redeliveries; -1 means unlimited. The dispatcher
	// owns the retry budget, so the delivery consumer runs unlimited.
	MaxDeliver    int
	MaxAckPending int
}

// LeadDeliveryStream holds delivery jobs until a dispatcher acknowledges them.
func LeadDeliveryStream(name, subject string) StreamConfig {
	return StreamConfig{
		Name:       name,
		Subjects:   []string{subject},
		MaxAge:     7 * 24 * time.Hour,
		MaxBytes:   512 * 1024 * 1024,
		MaxMsgs:    1_000_000,
		Duplicates: 10 * time.Minute,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
	}
}

// DispatcherConsumer returns the durable consumer used by dispatcher workers.
func DispatcherConsumer(name, subject string, ackWait time.Duration, maxAckPending int) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: subject,
		AckWait:       ackWait,
		MaxDeliver:    -1,
		MaxAckPending: maxAckPending,
	}
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgs:    cfg.MaxMsgs,
		Duplicates: cfg.Duplicates,
		Retention:  cfg.Retention,
		Storage:    cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// CreateOrUpdateConsumer creates or updates a durable consumer.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}
	return consumer, nil
}

// Publish stores msg and waits for the broker acknowledgment. duplicate is true
// when the broker dropped the message because msg.MsgID was already seen.
func (c *JetStreamClient) Publish(ctx context.Context, msg *messaging.Message) (duplicate bool, err error) {
	out := &nats.Msg{Subject: msg.Subject, Data: msg.Data, Header: nats.Header{}}
	for k, v := range msg.Headers {
		out.Header.Set(k, v)
	}

	var opts []jetstream.PublishOpt
	if msg.MsgID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.MsgID))
	}

	ack, err := c.js.PublishMsg(ctx, out, opts...)
	if err != nil {
		return false, fmt.Errorf("failed to publish to %s: %w", msg.Subject, err)
	}
	return ack.Duplicate, nil
}

// PendingMessages reports how many messages the stream currently holds.
func (c *JetStreamClient) PendingMessages(ctx context.Context, streamName string) (uint64, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return 0, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get stream info %s: %w", streamName, err)
	}
	return info.State.Msgs, nil
}

// ConsumeOptions tunes ConsumeMessages.
type ConsumeOptions struct {
	// Concurrency is the number of handlers allowed to run at once.
	Concurrency int
	// RetryDelay is used when the handler fails without requesting a delay.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// ConsumeMessages runs handler for each message of the durable consumer until
// ctx is cancelled or the returned stop function is called. stop blocks until
// in-flight handlers return.
func (c *JetStreamClient) ConsumeMessages(ctx context.Context, streamName, consumerName string, opts ConsumeOptions, handler messaging.MessageHandler) (stop func(), err error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}
	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", consumerName, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	slots := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case slots <- struct{}{}:
		case <-consumeCtx.Done():
			_ = msg.Nak()
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()

			m := toMessage(msg)
			if err := handler(consumeCtx, m); err != nil {
				delay := messaging.RetryDelay(err, opts.RetryDelay)
				if nakErr := msg.NakWithDelay(delay); nakErr != nil {
					logger.Warn("failed to nak message", slog.String("subject", m.Subject), slog.String("error", nakErr.Error()))
				}
				return
			}
			if ackErr := msg.Ack(); ackErr != nil {
				logger.Warn("failed to ack message", slog.String("subject", m.Subject), slog.String("error", ackErr.Error()))
			}
		}()
	}, jetstream.PullMaxMessages(opts.Concurrency))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cons.Stop()
		cancel()
		wg.Wait()
	}, nil
}

func toMessage(msg jetstream.Msg) *messaging.Message {
	m := &messaging.Message{
		Subject:    msg.Subject(),
		Data:       msg.Data(),
		Deliveries: 1,
		Timestamp:  time.Now(),
	}
	if headers := msg.Headers(); headers != nil {
		m.Headers = make(map[string]string, len(headers))
		for k := range headers {
			m.Headers[k] = headers.Get(k)
		}
		m.MsgID = headers.Get(nats.MsgIdHdr)
	}
	if meta, err := msg.Metadata(); err == nil {
		m.Deliveries = meta.NumDelivered
		m.Timestamp = meta.Timestamp
	}
	return m
}
