package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tschelli/lead-lander-sub001/common/database"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// PostgresCatalog reads the tenant catalog tables.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) ResolveAccount(ctx context.Context, clientID, accountID string) (*models.Account, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var a models.Account
	err := c.pool.QueryRow(ctx, `
		SELECT a.id, a.client_id, a.name, a.crm_connection_id, a.default_program_id, a.active
		FROM accounts a
		JOIN clients cl ON cl.id = a.client_id
		WHERE a.id = $1 AND a.client_id = $2 AND a.active AND cl.active
	`, accountID, clientID).Scan(&a.ID, &a.ClientID, &a.Name, &a.CRMConnectionID, &a.DefaultProgramID, &a.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %q", models.ErrUnknownEntity, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}
	return &a, nil
}

func (c *PostgresCatalog) ResolveProgram(ctx context.Context, accountID, programID string) (*models.Program, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var p models.Program
	err := c.pool.QueryRow(ctx, `
		SELECT id, account_id, name, display_order, active
		FROM programs
		WHERE id = $1 AND account_id = $2 AND active
	`, programID, accountID).Scan(&p.ID, &p.AccountID, &p.Name, &p.DisplayOrder, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: program %q", models.ErrUnknownEntity, programID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve program: %w", err)
	}
	return &p, nil
}

func (c *PostgresCatalog) ResolveLocation(ctx context.Context, accountID, locationID string) (*models.Location, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var l models.Location
	err := c.pool.QueryRow(ctx, `
		SELECT id, account_id, name, active
		FROM locations
		WHERE id = $1 AND account_id = $2 AND active
	`, locationID, accountID).Scan(&l.ID, &l.AccountID, &l.Name, &l.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: location %q", models.ErrUnknownEntity, locationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve location: %w", err)
	}
	return &l, nil
}

func (c *PostgresCatalog) ResolveConnection(ctx context.Context, accountID string) (*models.CRMConnection, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var (
		conn    models.CRMConnection
		headers []byte
	)
	err := c.pool.QueryRow(ctx, `
		SELECT cc.id, cc.client_id, cc.type, cc.url, cc.headers, cc.events, cc.secret, cc.integration, cc.active
		FROM accounts a
		JOIN crm_connections cc ON cc.id = a.crm_connection_id
		WHERE a.id = $1 AND cc.active
	`, accountID).Scan(&conn.ID, &conn.ClientID, &conn.Type, &conn.URL, &headers, &conn.Events,
		&conn.Secret, &conn.Integration, &conn.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoConnection
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve crm connection: %w", err)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &conn.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode crm connection headers: %w", err)
		}
	}
	return &conn, nil
}

func (c *PostgresCatalog) ListPrograms(ctx context.Context, accountID string) ([]models.Program, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT id, account_id, name, display_order, active
		FROM programs
		WHERE account_id = $1 AND active
		ORDER BY display_order, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var out []models.Program
	for rows.Next() {
		var p models.Program
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.DisplayOrder, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) ListQuizQuestions(ctx context.Context, accountID string) ([]models.QuizQuestion, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT id, account_id, prompt, kind, display_order, conditional_question_id, conditional_option_ids, direct_route
		FROM quiz_questions
		WHERE account_id = $1
		ORDER BY display_order, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz questions: %w", err)
	}

	var (
		questions []models.QuizQuestion
		ids       []string
	)
	for rows.Next() {
		var (
			q           models.QuizQuestion
			condQID     *string
			condOptions []string
		)
		if err := rows.Scan(&q.ID, &q.AccountID, &q.Prompt, &q.Kind, &q.DisplayOrder, &condQID, &condOptions, &q.DirectRoute); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan quiz question: %w", err)
		}
		if condQID != nil {
			q.ConditionalOn = &models.ConditionalOn{QuestionID: *condQID, OptionIDs: condOptions}
		}
		questions = append(questions, q)
		ids = append(ids, q.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quiz questions: %w", err)
	}
	if len(ids) == 0 {
		return questions, nil
	}

	optRows, err := c.pool.Query(ctx, `
		SELECT id, question_id, label, display_order, point_assignments, route_program_id
		FROM quiz_options
		WHERE question_id = ANY($1)
		ORDER BY display_order, id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz options: %w", err)
	}
	defer optRows.Close()

	byQuestion := make(map[string][]models.QuizAnswerOption, len(ids))
	for optRows.Next() {
		var (
			o      models.QuizAnswerOption
			points []byte
		)
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Label, &o.DisplayOrder, &points, &o.RouteProgramID); err != nil {
			return nil, fmt.Errorf("failed to scan quiz option: %w", err)
		}
		if len(points) > 0 {
			if err := json.Unmarshal(points, &o.PointAssignments); err != nil {
				return nil, fmt.Errorf("failed to decode point assignments of option %s: %w", o.ID, err)
			}
		}
		byQuestion[o.QuestionID] = append(byQuestion[o.QuestionID], o)
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quiz options: %w", err)
	}

	for i := range questions {
		questions[i].Options = byQuestion[questions[i].ID]
	}
	return questions, nil
}
