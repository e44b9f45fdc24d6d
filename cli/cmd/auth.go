package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/tschelli/lead-lander-sub001/cli/pkg/output"
	"github.com/tschelli/lead-lander-sub001/common/tokens"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an admin token",
	Long:  "Store a bearer token and API URL under a profile in ~/.leadctl/config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("token is required")
		}

		claims, err := peekClaims(token)
		if err != nil {
			return fmt.Errorf("token is not a valid JWT: %w", err)
		}

		profile := profileName(cmd)
		if err := cfg.SaveProfile(profile, apiURL(cmd), token); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}

		output.Success("Logged in as %s (%s)", claims.UserID, claims.Role)
		output.Info("Profile '%s' saved to %s", profile, cfg.Path())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := profileName(cmd)
		if err := cfg.RemoveProfile(profile); err != nil {
			return err
		}

		output.Success("Logged out from profile '%s'", profile)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity in the stored token",
	Long:  "Decode the stored token locally. The signature is checked by the API, not here.",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile := profileName(cmd)
		p, err := cfg.GetProfile(profile)
		if err != nil {
			return fmt.Errorf("not logged in: %w", err)
		}
		claims, err := peekClaims(p.Token)
		if err != nil {
			return err
		}

		pr, err := printer(cmd)
		if err != nil {
			return err
		}
		view := identity{
			Profile:    profile,
			APIURL:     apiURL(cmd),
			UserID:     claims.UserID,
			Role:       claims.Role,
			ClientID:   claims.ClientID,
			AccountIDs: claims.AccountIDs,
		}
		if claims.ExpiresAt != nil {
			view.ExpiresAt = &claims.ExpiresAt.Time
		}
		return pr.Print(view, func() *output.Table {
			t := output.NewTable("FIELD", "VALUE")
			t.AddRow("profile", view.Profile)
			t.AddRow("api url", view.APIURL)
			t.AddRow("user", view.UserID)
			t.AddRow("role", view.Role)
			t.AddRow("client", orDash(view.ClientID))
			t.AddRow("accounts", orDash(strings.Join(view.AccountIDs, ",")))
			if view.ExpiresAt != nil {
				state := "valid"
				if time.Now().After(*view.ExpiresAt) {
					state = "expired"
				}
				t.AddRow("expires", view.ExpiresAt.Format(time.RFC3339)+" ("+state+")")
			}
			return t
		})
	},
}

type identity struct {
	Profile    string     `json:"profile" yaml:"profile"`
	APIURL     string     `json:"apiUrl" yaml:"apiUrl"`
	UserID     string     `json:"userId" yaml:"userId"`
	Role       string     `json:"role" yaml:"role"`
	ClientID   string     `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	AccountIDs []string   `json:"accountIds,omitempty" yaml:"accountIds,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// peekClaims decodes a token without verifying its signature.
func peekClaims(token string) (*tokens.Claims, error) {
	claims := &tokens.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	if !tokens.ValidRole(claims.Role) {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	loginCmd.Flags().String("token", "", "bearer token (see 'leadctl token mint')")
	_ = loginCmd.MarkFlagRequired("token")
}
