package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tschelli/lead-lander-sub001/cli/pkg/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show intake volume for a client",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}
		clientID, _ := cmd.Flags().GetString("client")

		s, err := c.GetStats(cmd.Context(), clientID)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		return pr.Print(s, func() *output.Table {
			t := output.NewTable("METRIC", "VALUE")
			t.AddRow("client", s.ClientID)
			t.AddRow("total submissions", strconv.FormatInt(s.TotalSubmissions, 10))
			t.AddRow("duplicates", strconv.FormatInt(s.Duplicates, 10))
			t.AddRow("last hour", strconv.FormatInt(s.SubmissionsLastHour, 10))
			t.AddRow("last 24h", strconv.FormatInt(s.SubmissionsLast24h, 10))
			t.AddRow("unique IPs today", strconv.FormatInt(s.UniqueIPsToday, 10))
			last := "-"
			if s.LastSubmissionAt != nil {
				last = s.LastSubmissionAt.Local().Format(time.RFC3339)
			}
			t.AddRow("last submission", last)

			instances := make([]string, 0, len(s.Instances))
			for name := range s.Instances {
				instances = append(instances, name)
			}
			sort.Strings(instances)
			for _, name := range instances {
				t.AddRow("instance "+name, s.Instances[name])
			}
			return t
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("client", "", "client id (required for super admins)")
}
