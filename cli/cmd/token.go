package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tschelli/lead-lander-sub001/cli/pkg/output"
	svcconfig "github.com/tschelli/lead-lander-sub001/common/config"
	"github.com/tschelli/lead-lander-sub001/common/tokens"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Admin token utilities",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Sign a development admin token",
	Long: `Sign an admin bearer token with the service JWT secret.

The secret comes from --secret, or from the service configuration
($LEADS_CONFIG_DIR/config.yaml and LEADS_AUTH_JWT_SECRET).`,
	Example: `  leadctl token mint --user ops@example.com --role super_admin --save
  leadctl token mint --user viewer-1 --role account_viewer --client c1 --account a1 --account a2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		clientID, _ := cmd.Flags().GetString("client")
		accounts, _ := cmd.Flags().GetStringSlice("account")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret, _ := cmd.Flags().GetString("secret")
		save, _ := cmd.Flags().GetBool("save")

		if err := checkScope(role, clientID, accounts); err != nil {
			return err
		}

		if secret == "" {
			svc, err := svcconfig.Load("leads")
			if err != nil {
				return fmt.Errorf("no --secret given and service config failed to load: %w", err)
			}
			secret = svc.Auth.JWTSecret
		}

		token, err := tokens.NewTokenGenerator(secret, ttl).Generate(user, role, clientID, accounts)
		if err != nil {
			return err
		}

		if !save {
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		}
		profile := profileName(cmd)
		if err := cfg.SaveProfile(profile, apiURL(cmd), token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		output.Success("Token for %s (%s) saved to profile '%s'", user, role, profile)
		return nil
	},
}

// checkScope rejects tokens the API would treat as scoped to nothing.
func checkScope(role, clientID string, accounts []string) error {
	if !tokens.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	switch role {
	case tokens.RoleClientAdmin:
		if clientID == "" {
			return fmt.Errorf("role %s needs --client", role)
		}
	case tokens.RoleAccountAdmin, tokens.RoleAccountViewer:
		if clientID == "" || len(accounts) == 0 {
			return fmt.Errorf("role %s needs --client and at least one --account", role)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenMintCmd)

	tokenMintCmd.Flags().String("user", "", "user id placed in the token")
	tokenMintCmd.Flags().String("role", tokens.RoleSuperAdmin, "super_admin, client_admin, account_admin or account_viewer")
	tokenMintCmd.Flags().String("client", "", "client id for client and account roles")
	tokenMintCmd.Flags().StringSlice("account", nil, "account id for account roles (repeatable)")
	tokenMintCmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	tokenMintCmd.Flags().String("secret", "", "HS256 signing secret")
	tokenMintCmd.Flags().Bool("save", false, "store the token in the current profile instead of printing it")
	_ = tokenMintCmd.MarkFlagRequired("user")
}
