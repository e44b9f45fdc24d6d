package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tschelli/lead-lander-sub001/common/database"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

const (
	constraintIdempotency = "submissions_client_idempotency_key"
	constraintAttemptNum  = "delivery_attempts_submission_attempt"
)

const submissionColumns = `id, client_id, account_id, location_id, program_id, contact, answers, metadata,
	status, idempotency_key, crm_lead_id, last_step_completed, consent, attempt_base,
	created_at, updated_at, delivered_at`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository implements Repository on PostgreSQL via pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var (
		s                         models.Submission
		contact, answers, consent []byte
		metadata                  []byte
	)
	err := row.Scan(&s.ID, &s.ClientID, &s.AccountID, &s.LocationID, &s.ProgramID, &contact, &answers, &metadata,
		&s.Status, &s.IdempotencyKey, &s.CRMLeadID, &s.LastStepCompleted, &consent, &s.AttemptBase,
		&s.CreatedAt, &s.UpdatedAt, &s.DeliveredAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(contact, &s.Contact); err != nil {
		return nil, fmt.Errorf("failed to decode contact: %w", err)
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	if err := json.Unmarshal(consent, &s.Consent); err != nil {
		return nil, fmt.Errorf("failed to decode consent: %w", err)
	}
	s.Metadata = metadata
	return &s, nil
}

func insertAudit(ctx context.Context, db execer, entry *models.AuditLogEntry) error {
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO audit_log (id, client_id, submission_id, event, payload, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.ClientID, entry.SubmissionID, string(entry.Event), []byte(payload), entry.Signature, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	return nil
}

func (r *PostgresRepository) CreateSubmission(ctx context.Context, sub *models.Submission, entry *models.AuditLogEntry) (*models.Submission, bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	contact, err := json.Marshal(sub.Contact)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode contact: %w", err)
	}
	answers, err := json.Marshal(nonNilAnswers(sub.Answers))
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode answers: %w", err)
	}
	consent, err := json.Marshal(sub.Consent)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode consent: %w", err)
	}
	metadata := []byte(sub.Metadata)
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO submissions (id, client_id, account_id, location_id, program_id, contact, answers, metadata,
			status, idempotency_key, last_step_completed, consent, attempt_base, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, $13, $14)
		ON CONFLICT ON CONSTRAINT `+constraintIdempotency+` DO NOTHING
	`, sub.ID, sub.ClientID, sub.AccountID, sub.LocationID, sub.ProgramID, contact, answers, metadata,
		string(sub.Status), sub.IdempotencyKey, sub.LastStepCompleted, consent, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert submission: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race to (or replayed) an earlier request with the same key.
		existing, err := scanSubmission(tx.QueryRow(ctx,
			`SELECT `+submissionColumns+` FROM submissions WHERE client_id = $1 AND idempotency_key = $2`,
			sub.ClientID, sub.IdempotencyKey))
		if err != nil {
			return nil, false, fmt.Errorf("failed to load existing submission: %w", err)
		}
		return existing, false, nil
	}

	if entry != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		if database.IsUniqueViolation(err, constraintIdempotency) {
			existing, getErr := r.GetSubmissionByIdempotencyKey(ctx, sub.ClientID, sub.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to commit submission: %w", err)
	}

	stored := *sub
	stored.Metadata = metadata
	return &stored, true, nil
}

func nonNilAnswers(a []models.Answer) []models.Answer {
	if a == nil {
		return []models.Answer{}
	}
	return a
}

func (r *PostgresRepository) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	s, err := scanSubmission(r.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetSubmissionByIdempotencyKey(ctx context.Context, clientID, key string) (*models.Submission, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	s, err := scanSubmission(r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE client_id = $1 AND idempotency_key = $2`, clientID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission by idempotency key: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListSubmissions(ctx context.Context, f models.ListSubmissionsFilter) ([]*models.Submission, int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	where := []string{"client_id = $1"}
	args := []any{f.ClientID}
	argPos := 2

	if len(f.AccountIDs) > 0 {
		where = append(where, fmt.Sprintf("account_id = ANY($%d)", argPos))
		args = append(args, f.AccountIDs)
		argPos++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(f.Status))
		argPos++
	}
	if f.ProgramID != "" {
		where = append(where, fmt.Sprintf("program_id = $%d", argPos))
		args = append(args, f.ProgramID)
		argPos++
	}
	if f.LocationID != "" {
		where = append(where, fmt.Sprintf("location_id = $%d", argPos))
		args = append(args, f.LocationID)
		argPos++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argPos))
		args = append(args, *f.From)
		argPos++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("created_at < $%d", argPos))
		args = append(args, *f.To)
		argPos++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE ` + whereClause +
		` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var out []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepository) ApplyTransition(ctx context.Context, t *models.Transition) error {
	if err := validateTransition(t); err != nil {
		return err
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		current  models.SubmissionStatus
		attempts int
	)
	err = tx.QueryRow(ctx, `
		SELECT s.status, (SELECT COUNT(*) FROM delivery_attempts a WHERE a.submission_id = s.id)
		FROM submissions s
		WHERE s.id = $1
		FOR UPDATE OF s
	`, t.SubmissionID).Scan(&current, &attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSubmissionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock submission: %w", err)
	}
	if current != t.From {
		return fmt.Errorf("%w: stored status is %s, expected %s", ErrStaleTransition, current, t.From)
	}

	if a := t.Attempt; a != nil {
		if a.AttemptNumber != attempts+1 {
			return fmt.Errorf("%w: attempt %d already recorded", ErrStaleTransition, a.AttemptNumber)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO delivery_attempts (id, submission_id, attempt_number, outcome, http_status, error_detail, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, a.ID, a.SubmissionID, a.AttemptNumber, string(a.Outcome), a.HTTPStatus, a.ErrorDetail, a.StartedAt, a.FinishedAt)
		if err != nil {
			if database.IsUniqueViolation(err, constraintAttemptNum) {
				return fmt.Errorf("%w: attempt %d already recorded", ErrStaleTransition, a.AttemptNumber)
			}
			return fmt.Errorf("failed to insert delivery attempt: %w", err)
		}
	}

	var deliveredAt *time.Time
	if t.To == models.StatusDelivered {
		deliveredAt = &t.At
	}
	_, err = tx.Exec(ctx, `
		UPDATE submissions
		SET status = $2,
		    updated_at = $3,
		    crm_lead_id = COALESCE($4, crm_lead_id),
		    delivered_at = COALESCE($5, delivered_at)
		WHERE id = $1
	`, t.SubmissionID, string(t.To), t.At, t.CRMLeadID, deliveredAt)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}

	if t.Audit != nil {
		if err := insertAudit(ctx, tx, t.Audit); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Requeue(ctx context.Context, submissionID string, entry *models.AuditLogEntry) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.SubmissionStatus
	err = tx.QueryRow(ctx, `SELECT status FROM submissions WHERE id = $1 FOR UPDATE`, submissionID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrSubmissionNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock submission: %w", err)
	}
	if current != models.StatusFailed {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE submissions
		SET status = 'received',
		    attempt_base = (SELECT COUNT(*) FROM delivery_attempts WHERE submission_id = $1),
		    updated_at = NOW()
		WHERE id = $1
	`, submissionID)
	if err != nil {
		return false, fmt.Errorf("failed to requeue submission: %w", err)
	}

	if entry != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit requeue: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) CountAttempts(ctx context.Context, submissionID string) (int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_attempts WHERE submission_id = $1`, submissionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListAttempts(ctx context.Context, submissionID string) ([]*models.DeliveryAttempt, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, submission_id, attempt_number, outcome, http_status, error_detail, started_at, finished_at
		FROM delivery_attempts
		WHERE submission_id = $1
		ORDER BY attempt_number
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	out := []*models.DeliveryAttempt{}
	for rows.Next() {
		var a models.DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.AttemptNumber, &a.Outcome, &a.HTTPStatus, &a.ErrorDetail, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	return insertAudit(ctx, r.pool, entry)
}

func (r *PostgresRepository) ListAudit(ctx context.Context, q models.AuditQuery) ([]*models.AuditLogEntry, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT id, client_id, submission_id, event, payload, signature, created_at FROM audit_log WHERE client_id = $1`
	args := []any{q.ClientID}
	if q.SubmissionID != "" {
		query += ` AND submission_id = $2`
		args = append(args, q.SubmissionID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, models.ClampAuditLimit(q.Limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	out := []*models.AuditLogEntry{}
	for rows.Next() {
		var (
			e       models.AuditLogEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.ClientID, &e.SubmissionID, &e.Event, &payload, &e.Signature, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Payload = payload
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListStaleUndelivered(ctx context.Context, cutoff time.Time, limit int) ([]*models.Submission, error) {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	query := `SELECT ` + submissionColumns + ` FROM submissions
		WHERE status IN ('received', 'delivering') AND crm_lead_id IS NULL AND created_at < $1
		ORDER BY created_at, id`
	args := []any{cutoff}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered submissions: %w", err)
	}
	defer rows.Close()

	var out []*models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
