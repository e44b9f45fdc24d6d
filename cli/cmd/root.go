package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tschelli/lead-lander-sub001/cli/internal/client"
	"github.com/tschelli/lead-lander-sub001/cli/internal/config"
	"github.com/tschelli/lead-lander-sub001/cli/pkg/output"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "leadctl",
	Short: "Lead pipeline operator CLI",
	Long: `leadctl is the command-line interface for the lead capture pipeline.

Inspect submissions and their delivery attempts, read the audit trail,
requeue failed deliveries, run backfills, seed fake leads and manage the
database schema from your terminal.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.leadctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides the profile)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

func profileName(cmd *cobra.Command) string {
	name, _ := cmd.Flags().GetString("profile")
	if name == "" {
		name = cfg.CurrentProfile
	}
	if name == "" {
		name = "default"
	}
	return name
}

func apiURL(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("api-url"); u != "" {
		return u
	}
	return cfg.GetAPIURL(profileName(cmd))
}

// adminClient returns a client carrying the profile's bearer token.
func adminClient(cmd *cobra.Command) (*client.Client, error) {
	p, err := cfg.GetProfile(profileName(cmd))
	if err != nil || p.Token == "" {
		return nil, fmt.Errorf("not logged in, run 'leadctl login --token <token>'")
	}
	return client.New(apiURL(cmd), p.Token), nil
}

func printer(cmd *cobra.Command) (*output.Printer, error) {
	f, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(f)
	if err != nil {
		return nil, err
	}
	p := output.NewPrinter(format)
	p.Out = cmd.OutOrStdout()
	return p, nil
}
