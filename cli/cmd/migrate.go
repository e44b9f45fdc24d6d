package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tschelli/lead-lander-sub001/cli/pkg/output"
	svcconfig "github.com/tschelli/lead-lander-sub001/common/config"
	"github.com/tschelli/lead-lander-sub001/common/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Apply or roll back schema migrations.

The connection defaults to the service configuration; override it with
--database-url and --source.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, dsn, err := migrationTarget(cmd)
		if err != nil {
			return err
		}
		if err := database.MigrateUp(source, dsn); err != nil {
			return err
		}
		output.Success("Schema is up to date")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		source, dsn, err := migrationTarget(cmd)
		if err != nil {
			return err
		}
		if err := database.MigrateDown(source, dsn, steps); err != nil {
			return err
		}
		output.Success("Rolled back %d migration(s)", steps)
		return nil
	},
}

func migrationTarget(cmd *cobra.Command) (source, dsn string, err error) {
	source, _ = cmd.Flags().GetString("source")
	dsn, _ = cmd.Flags().GetString("database-url")
	if source != "" && dsn != "" {
		return source, dsn, nil
	}

	svc, err := svcconfig.Load("leads")
	if err != nil {
		return "", "", fmt.Errorf("failed to load service config: %w", err)
	}
	if source == "" {
		source = svc.Database.MigrationsPath
	}
	if dsn == "" {
		dsn = svc.Database.Postgres.ConnString()
	}
	return source, dsn, nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().String("database-url", "", "postgres:// connection URL")
	migrateCmd.PersistentFlags().String("source", "", "migration source URL, e.g. file://migrations")
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
}
