// Package dispatcher consumes delivery jobs, calls the CRM adapter and drives
// the submission state machine: every attempt is persisted together with its
// status change and audit entry, then the job is retried with backoff or
// finished.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tschelli/lead-lander-sub001/common/logging"
	"github.com/tschelli/lead-lander-sub001/common/messaging"
	"github.com/tschelli/lead-lander-sub001/leads/internal/auditlog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/catalog"
	"github.com/tschelli/lead-lander-sub001/leads/internal/crm"
	"github.com/tschelli/lead-lander-sub001/leads/internal/metrics"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
	"github.com/tschelli/lead-lander-sub001/leads/internal/queue"
	"github.com/tschelli/lead-lander-sub001/leads/internal/repository"
)

var errClientBusy = errors.New("client delivery slots exhausted")

// Config tunes retries and concurrency.
type Config struct {
	Workers         int
	MaxPerClient    int
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	RequestTimeout  time.Duration
	StoreRetryDelay time.Duration
	// DepthInterval is how often the queue depth gauge is refreshed.
	DepthInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.StoreRetryDelay <= 0 {
		c.StoreRetryDelay = 5 * time.Second
	}
	if c.DepthInterval <= 0 {
		c.DepthInterval = 15 * time.Second
	}
	return c
}

// AdapterFactory builds the adapter for a connection.
type AdapterFactory func(conn *models.CRMConnection) (crm.Adapter, error)

type Option func(*Dispatcher)

func WithAdapterFactory(f AdapterFactory) Option {
	return func(d *Dispatcher) { d.newAdapter = f }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

type Dispatcher struct {
	repo       repository.Repository
	catalog    catalog.Catalog
	queue      queue.Queue
	audit      *auditlog.Builder
	newAdapter AdapterFactory
	cfg        Config
	limiter    *clientLimiter
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func New(repo repository.Repository, cat catalog.Catalog, q queue.Queue, builder *auditlog.Builder, cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		repo:    repo,
		catalog: cat,
		queue:   q,
		audit:   builder,
		cfg:     cfg,
		limiter: newClientLimiter(cfg.MaxPerClient),
		logger:  logger,
		tracer:  otel.Tracer("leads/dispatcher"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	d.newAdapter = func(conn *models.CRMConnection) (crm.Adapter, error) {
		return crm.New(conn, crm.Options{Timeout: cfg.RequestTimeout})
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes jobs until ctx is cancelled, then waits for in-flight jobs.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop, err := d.queue.Consume(ctx, queue.ConsumeOptions{
		Concurrency: d.cfg.Workers,
		RetryDelay:  d.cfg.StoreRetryDelay,
	}, d.Handle)
	if err != nil {
		return fmt.Errorf("failed to start consuming delivery jobs: %w", err)
	}
	d.logger.Info("dispatcher started", slog.Int("workers", d.cfg.Workers), slog.Int("max_attempts", d.cfg.MaxAttempts))

	ticker := time.NewTicker(d.cfg.DepthInterval)
	defer ticker.Stop()
	d.refreshDepth(ctx)
	for {
		select {
		case <-ctx.Done():
			stop()
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
			d.refreshDepth(ctx)
		}
	}
}

func (d *Dispatcher) refreshDepth(ctx context.Context) {
	n, err := d.queue.Depth(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue depth", logging.Error(err))
		return
	}
	metrics.QueueDepth.Set(float64(n))
}

// Handle processes one job. nil finishes it; an error carrying
// messaging.RetryAfter redelivers it after that delay.
func (d *Dispatcher) Handle(ctx context.Context, job queue.Job) error {
	log := d.logger.With(logging.SubmissionID(job.SubmissionID), logging.JobKey(job.Key()))

	sub, err := d.repo.GetSubmission(ctx, job.SubmissionID)
	if errors.Is(err, repository.ErrSubmissionNotFound) {
		log.Warn("dropping job for unknown submission")
		d.release(ctx, job.SubmissionID)
		return nil
	}
	if err != nil {
		metrics.StoreErrors.Inc()
		return messaging.RetryAfter(d.cfg.StoreRetryDelay, err)
	}
	if sub.Status.IsTerminal() {
		log.Debug("ignoring job for terminal submission", slog.String("status", string(sub.Status)))
		d.release(ctx, sub.ID)
		return nil
	}

	release, ok := d.limiter.tryAcquire(sub.ClientID)
	if !ok {
		return messaging.RetryAfter(time.Second, errClientBusy)
	}
	defer release()

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	return d.deliver(ctx, sub, log.With(logging.ClientID(sub.ClientID)))
}

func (d *Dispatcher) deliver(ctx context.Context, sub *models.Submission, log *slog.Logger) error {
	conn, adapter, connErr := d.adapterFor(ctx, sub)
	if connErr != nil && !isPermanent(connErr) {
		metrics.StoreErrors.Inc()
		return messaging.RetryAfter(d.cfg.StoreRetryDelay, connErr)
	}

	if adapter != nil && !adapter.Accepts(crm.EventLeadCreated) {
		return d.skip(ctx, sub, conn, log)
	}

	count, err := d.repo.CountAttempts(ctx, sub.ID)
	if err != nil {
		metrics.StoreErrors.Inc()
		return messaging.RetryAfter(d.cfg.StoreRetryDelay, err)
	}
	attemptNumber := count + 1
	cycleAttempt := count - sub.AttemptBase + 1

	ctx, span := d.tracer.Start(ctx, "crm.deliver", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lead.submission_id", sub.ID),
			attribute.String("lead.client_id", sub.ClientID),
			attribute.Int("lead.attempt", attemptNumber),
		))
	defer span.End()

	started := d.now()
	var result crm.Result
	if connErr != nil {
		result = crm.Result{Outcome: models.OutcomePermanentFailure, Err: connErr}
	} else {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
		result = adapter.Deliver(callCtx, sub)
		cancel()
	}
	finished := d.now()

	span.SetAttributes(attribute.String("lead.outcome", string(result.Outcome)))
	if result.HTTPStatus != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", *result.HTTPStatus))
	}
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}
	metrics.DeliveryAttempts.WithLabelValues(string(result.Outcome)).Inc()
	metrics.DeliveryDuration.WithLabelValues(string(result.Outcome)).Observe(finished.Sub(started).Seconds())

	to := nextStatus(result.Outcome, cycleAttempt, d.cfg.MaxAttempts)
	var retryDelay time.Duration
	if to == models.StatusDelivering {
		retryDelay = Backoff(cycleAttempt, d.cfg.BaseDelay, d.cfg.MaxDelay)
	}

	t, err := d.transition(sub, attemptNumber, to, result, started, finished, retryDelay)
	if err != nil {
		return messaging.RetryAfter(d.cfg.StoreRetryDelay, err)
	}

	log = log.With(logging.Attempt(attemptNumber), logging.Outcome(string(result.Outcome)))
	if err := d.repo.ApplyTransition(ctx, t); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			log.Warn("submission changed during delivery, dropping attempt", logging.Error(err))
			d.releaseIfTerminal(ctx, sub.ID)
			return nil
		}
		// Nothing of the attempt is recorded; it is retried as if it never happened.
		metrics.StoreErrors.Inc()
		log.Error("failed to record delivery attempt", logging.Error(err))
		return messaging.RetryAfter(d.cfg.StoreRetryDelay, err)
	}

	switch to {
	case models.StatusDelivered:
		log.Info("lead delivered", slog.String("crm_lead_id", result.CRMLeadID))
	case models.StatusFailed:
		log.Warn("lead delivery failed", logging.Error(result.Err))
	default:
		log.Info("lead delivery will be retried", logging.Error(result.Err), slog.Duration("retry_in", retryDelay))
		return messaging.RetryAfter(retryDelay, result.Err)
	}

	metrics.DeliveriesTerminal.WithLabelValues(string(to)).Inc()
	d.release(ctx, sub.ID)
	return nil
}

// adapterFor resolves the submission's connection. A missing connection or an
// unusable one is returned as a *crm.PermanentError.
func (d *Dispatcher) adapterFor(ctx context.Context, sub *models.Submission) (*models.CRMConnection, crm.Adapter, error) {
	conn, err := d.catalog.ResolveConnection(ctx, sub.AccountID)
	if errors.Is(err, catalog.ErrNoConnection) || errors.Is(err, models.ErrUnknownEntity) {
		return nil, nil, &crm.PermanentError{Err: catalog.ErrNoConnection}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve crm connection: %w", err)
	}
	adapter, err := d.newAdapter(conn)
	if err != nil {
		return conn, nil, &crm.PermanentError{Err: err}
	}
	return conn, adapter, nil
}

func isPermanent(err error) bool {
	var perm *crm.PermanentError
	return errors.As(err, &perm)
}

// nextStatus applies the state machine to an attempt outcome.
func nextStatus(outcome models.AttemptOutcome, cycleAttempt, maxAttempts int) models.SubmissionStatus {
	switch outcome {
	case models.OutcomeSuccess:
		return models.StatusDelivered
	case models.OutcomeRetryableFailure:
		if cycleAttempt < maxAttempts {
			return models.StatusDelivering
		}
	}
	return models.StatusFailed
}

func auditEventFor(to models.SubmissionStatus) models.AuditEvent {
	switch to {
	case models.StatusDelivered:
		return models.EventDeliverySucceeded
	case models.StatusFailed:
		return models.EventDeliveryFailed
	}
	return models.EventDeliveryAttempted
}

func (d *Dispatcher) transition(sub *models.Submission, attemptNumber int, to models.SubmissionStatus, result crm.Result, started, finished time.Time, retryDelay time.Duration) (*models.Transition, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attempt id: %w", err)
	}
	attempt := &models.DeliveryAttempt{
		ID:            id.String(),
		SubmissionID:  sub.ID,
		AttemptNumber: attemptNumber,
		Outcome:       result.Outcome,
		HTTPStatus:    result.HTTPStatus,
		StartedAt:     started,
		FinishedAt:    finished,
	}
	payload := auditlog.AttemptRecorded{
		AttemptNumber: attemptNumber,
		Outcome:       result.Outcome,
		HTTPStatus:    result.HTTPStatus,
		FromStatus:    sub.Status,
		ToStatus:      to,
	}
	if result.Err != nil {
		detail := result.Err.Error()
		attempt.ErrorDetail = &detail
		payload.Error = &detail
	}

	var leadID *string
	if to == models.StatusDelivered {
		lead := result.CRMLeadID
		if lead == "" {
			lead = sub.ID
		}
		leadID = &lead
		payload.CRMLeadID = leadID
	}
	if retryDelay > 0 {
		next := finished.Add(retryDelay)
		payload.NextAttemptAt = &next
	}

	entry, err := d.audit.Entry(sub.ClientID, &sub.ID, auditEventFor(to), payload)
	if err != nil {
		return nil, err
	}
	return &models.Transition{
		SubmissionID: sub.ID,
		From:         sub.Status,
		To:           to,
		Attempt:      attempt,
		CRMLeadID:    leadID,
		At:           finished,
		Audit:        entry,
	}, nil
}

// skip records that the connection's event filter declined the lead. The
// status stays unchanged and the job ends; its admission is dropped so a
// requeue or backfill after the connection is fixed dispatches it again.
func (d *Dispatcher) skip(ctx context.Context, sub *models.Submission, conn *models.CRMConnection, log *slog.Logger) error {
	entry, err := d.audit.Entry(sub.ClientID, &sub.ID, models.EventDeliverySkipped, auditlog.Skipped{
		ConnectionID: conn.ID,
		Event:        crm.EventLeadCreated,
		Reason:       "event not enabled on connection",
	})
	if err != nil {
		return messaging.RetryAfter(d.cfg.StoreRetryDelay, err)
	}
	if err := d.repo.AppendAudit(ctx, entry); err != nil {
		metrics.StoreErrors.Inc()
		return messaging.RetryAfter(d.cfg.StoreRetryDelay, err)
	}
	d.release(ctx, sub.ID)
	log.Info("lead delivery skipped by connection event filter")
	return nil
}

func (d *Dispatcher) release(ctx context.Context, submissionID string) {
	if err := d.queue.Release(context.WithoutCancel(ctx), submissionID); err != nil {
		d.logger.Warn("failed to release job admission", logging.SubmissionID(submissionID), logging.Error(err))
	}
}

func (d *Dispatcher) releaseIfTerminal(ctx context.Context, submissionID string) {
	sub, err := d.repo.GetSubmission(ctx, submissionID)
	if err == nil && sub.Status.IsTerminal() {
		d.release(ctx, submissionID)
	}
}
