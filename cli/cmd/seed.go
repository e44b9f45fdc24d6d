package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tschelli/lead-lander-sub001/cli/internal/client"
	"github.com/tschelli/lead-lander-sub001/cli/internal/seeder"
	"github.com/tschelli/lead-lander-sub001/cli/pkg/output"
)

var seedCfgFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Submit fake leads to the intake API",
	Long: `Generate realistic fake leads and post them to POST /v1/submissions.

Configuration cascade (priority order):
  1. Command-line flags
  2. ./seeder.yaml (project directory)
  3. ~/.leadctl/seeder.yaml (user directory)
  4. Built-in defaults`,
	Example: `  leadctl seed --client c1 --account a1 --program p1 --count 500
  leadctl seed --seeder-config ./seeder.yaml --duplicate-rate 0.2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := seeder.LoadConfig(seedCfgFile)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		d := &sc.Defaults
		if flags.Changed("api-url") {
			d.APIURL, _ = flags.GetString("api-url")
		}
		if flags.Changed("client") {
			d.ClientID, _ = flags.GetString("client")
		}
		if flags.Changed("account") {
			d.AccountID, _ = flags.GetString("account")
		}
		if flags.Changed("program") {
			d.ProgramIDs, _ = flags.GetStringSlice("program")
		}
		if flags.Changed("location") {
			d.LocationIDs, _ = flags.GetStringSlice("location")
		}
		if flags.Changed("count") {
			d.Count, _ = flags.GetInt("count")
		}
		if flags.Changed("concurrency") {
			d.Concurrency, _ = flags.GetInt("concurrency")
		}
		if flags.Changed("interval") {
			d.Interval, _ = flags.GetDuration("interval")
		}
		if flags.Changed("duplicate-rate") {
			d.DuplicateRate, _ = flags.GetFloat64("duplicate-rate")
		}
		if flags.Changed("seed") {
			d.Seed, _ = flags.GetInt64("seed")
		}

		runner := seeder.NewRunner(sc, client.New(d.APIURL, ""))
		step := max(d.Count/10, 1)
		runner.Progress = func(done, total int) {
			if done%step == 0 || done == total {
				output.Info("Progress: %d/%d", done, total)
			}
		}

		output.Info("Seeding %d leads into %s (client %s, account %s)", d.Count, d.APIURL, d.ClientID, d.AccountID)
		stats, err := runner.Run(cmd.Context())
		if stats != nil {
			output.Success("Created: %d  Duplicates: %d  Failed: %d", stats.Created, stats.Duplicates, stats.Failed)
			for _, e := range stats.Errors {
				output.Warn("%v", e)
			}
		}
		if err != nil {
			return fmt.Errorf("seeding stopped: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedCfgFile, "seeder-config", "", "seeder config file")
	seedCmd.Flags().String("client", "", "client id")
	seedCmd.Flags().String("account", "", "account id")
	seedCmd.Flags().StringSlice("program", nil, "program ids to pick from (repeatable)")
	seedCmd.Flags().StringSlice("location", nil, "location ids to pick from (repeatable)")
	seedCmd.Flags().Int("count", 100, "number of leads")
	seedCmd.Flags().Int("concurrency", 4, "parallel requests")
	seedCmd.Flags().Duration("interval", 0, "pause between leads")
	seedCmd.Flags().Float64("duplicate-rate", 0.05, "share of leads that replay an earlier idempotency key")
	seedCmd.Flags().Int64("seed", 0, "random seed (0 uses the clock)")
}
