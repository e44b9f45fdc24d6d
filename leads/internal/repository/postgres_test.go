package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tschelli/lead-lander-sub001/common/database"
	"github.com/tschelli/lead-lander-sub001/leads/internal/models"
)

// setupTestDatabase starts a PostgreSQL container, applies the migrations and
// returns a repository bound to it. The container is shared by the whole test.
func setupTestDatabase(t *testing.T) *PostgresRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("leads_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp("file://../../../migrations", connStr))

	pool, err := database.Connect(ctx, connStr, database.PoolOptions{MaxConns: 10, MinConns: 1})
	require.NoError(t, err)
	repo := NewPostgresRepository(pool)
	t.Cleanup(repo.Close)
	return repo
}

func TestPostgresRepository_Contract(t *testing.T) {
	repo := setupTestDatabase(t)
	runContract(t, func(t *testing.T) Repository { return repo })
}

func TestPostgresRepository_AuditLogIsAppendOnly(t *testing.T) {
	repo := setupTestDatabase(t)
	ctx := context.Background()

	entry := newAudit("c1", nil, models.EventRequeued)
	require.NoError(t, repo.AppendAudit(ctx, entry))

	_, err := repo.pool.Exec(ctx, `UPDATE audit_log SET event = 'tampered' WHERE id = $1`, entry.ID)
	assert.Error(t, err)
	_, err = repo.pool.Exec(ctx, `DELETE FROM audit_log WHERE id = $1`, entry.ID)
	assert.Error(t, err)
}

func TestPostgresRepository_DeliveredRequiresLeadID(t *testing.T) {
	repo := setupTestDatabase(t)
	ctx := context.Background()

	sub := newSubmission("c1", "k-check", time.Now().UTC().Truncate(time.Microsecond))
	_, _, err := repo.CreateSubmission(ctx, sub, nil)
	require.NoError(t, err)

	_, err = repo.pool.Exec(ctx, `UPDATE submissions SET status = 'delivered' WHERE id = $1`, sub.ID)
	assert.Error(t, err, "check constraint ties delivered to crm_lead_id")
}
