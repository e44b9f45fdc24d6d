package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tschelli/lead-lander-sub001/cli/internal/client"
	"github.com/tschelli/lead-lander-sub001/cli/pkg/output"
)

const timeLayout = "2006-01-02 15:04:05"

var submissionsCmd = &cobra.Command{
	Use:     "submissions",
	Aliases: []string{"subs"},
	Short:   "Inspect captured leads",
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions visible to your token",
	Example: `  leadctl submissions list --status failed
  leadctl submissions list --account acct-1 --since 24h -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}

		f := client.SubmissionFilter{}
		f.ClientID, _ = cmd.Flags().GetString("client")
		f.AccountID, _ = cmd.Flags().GetString("account")
		f.Status, _ = cmd.Flags().GetString("status")
		f.ProgramID, _ = cmd.Flags().GetString("program")
		f.LocationID, _ = cmd.Flags().GetString("location")
		f.Page, _ = cmd.Flags().GetInt("page")
		f.Limit, _ = cmd.Flags().GetInt("limit")
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			f.From = time.Now().Add(-since)
		}

		list, err := c.ListSubmissions(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("failed to list submissions: %w", err)
		}

		return pr.Print(list, func() *output.Table {
			t := output.NewTable("ID", "STATUS", "ACCOUNT", "PROGRAM", "EMAIL", "CRM LEAD", "CREATED")
			for _, s := range list.Submissions {
				t.AddRow(s.ID, s.Status, s.AccountID, s.ProgramID, s.Contact.Email, output.Deref(s.CRMLeadID), s.CreatedAt.Local().Format(timeLayout))
			}
			p := list.Pagination
			t.AddRow("")
			t.AddRow(fmt.Sprintf("page %d, %d of %d", p.Page, len(list.Submissions), p.Total))
			return t
		})
	},
}

var submissionsGetCmd = &cobra.Command{
	Use:   "get <submission-id>",
	Short: "Show one submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}

		s, err := c.GetSubmission(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get submission: %w", err)
		}

		return pr.Print(s, func() *output.Table {
			t := output.NewTable("FIELD", "VALUE")
			t.AddRow("id", s.ID)
			t.AddRow("status", output.StatusColor(s.Status).Sprint(s.Status))
			t.AddRow("client", s.ClientID)
			t.AddRow("account", s.AccountID)
			t.AddRow("location", output.Deref(s.LocationID))
			t.AddRow("program", s.ProgramID)
			t.AddRow("name", s.Contact.FirstName+" "+s.Contact.LastName)
			t.AddRow("email", s.Contact.Email)
			t.AddRow("phone", s.Contact.Phone)
			t.AddRow("consent", fmt.Sprintf("%t (%s)", s.Consent.Consented, s.Consent.TextVersion))
			t.AddRow("idempotency key", s.IdempotencyKey)
			t.AddRow("crm lead", output.Deref(s.CRMLeadID))
			for _, a := range s.Answers {
				t.AddRow("answer "+a.QuestionID, a.Value)
			}
			t.AddRow("created", s.CreatedAt.Local().Format(timeLayout))
			t.AddRow("updated", s.UpdatedAt.Local().Format(timeLayout))
			return t
		})
	},
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts <submission-id>",
	Short: "List delivery attempts for a submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}

		attempts, err := c.ListAttempts(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list attempts: %w", err)
		}

		return pr.Print(attempts, func() *output.Table {
			t := output.NewTable("#", "OUTCOME", "HTTP", "STARTED", "DURATION", "ERROR")
			for _, a := range attempts {
				status := "-"
				if a.HTTPStatus != nil {
					status = strconv.Itoa(*a.HTTPStatus)
				}
				t.AddRow(
					strconv.Itoa(a.AttemptNumber),
					a.Outcome,
					status,
					a.StartedAt.Local().Format(timeLayout),
					a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond).String(),
					output.Deref(a.ErrorDetail),
				)
			}
			return t
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the audit trail",
	Long: `List audit log entries, newest first.

Account-scoped tokens must pass --submission.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}

		f := client.AuditFilter{}
		f.ClientID, _ = cmd.Flags().GetString("client")
		f.SubmissionID, _ = cmd.Flags().GetString("submission")
		f.Limit, _ = cmd.Flags().GetInt("limit")

		entries, err := c.ListAudit(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("failed to list audit entries: %w", err)
		}

		return pr.Print(entries, func() *output.Table {
			t := output.NewTable("TIME", "EVENT", "SUBMISSION", "PAYLOAD")
			for _, e := range entries {
				t.AddRow(e.CreatedAt.Local().Format(timeLayout), e.Event, output.Deref(e.SubmissionID), string(e.Payload))
			}
			return t
		})
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <submission-id>",
	Short: "Schedule another delivery cycle",
	Long: `Requeue a failed submission, or re-enqueue one that is still pending.

Running it twice never produces two deliveries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		res, err := c.Requeue(cmd.Context(), args[0], reason)
		if err != nil {
			return fmt.Errorf("failed to requeue: %w", err)
		}

		if pr.Format != output.FormatTable {
			return pr.Print(res, nil)
		}
		switch {
		case res.Requeued:
			output.Success("Submission %s requeued (status %s)", res.SubmissionID, res.Status)
		case res.Enqueued:
			output.Success("Submission %s re-enqueued (status %s)", res.SubmissionID, res.Status)
		default:
			output.Info("Submission %s already has a pending delivery job", res.SubmissionID)
		}
		return nil
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-enqueue submissions stuck without a delivery job",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient(cmd)
		if err != nil {
			return err
		}
		pr, err := printer(cmd)
		if err != nil {
			return err
		}
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		limit, _ := cmd.Flags().GetInt("limit")

		res, err := c.Backfill(cmd.Context(), olderThan, limit)
		if err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}

		if pr.Format != output.FormatTable {
			return pr.Print(res, nil)
		}
		output.Success("Scanned %d submissions, enqueued %d", res.Scanned, res.Enqueued)
		for _, id := range res.SubmissionIDs {
			output.Info("  %s", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submissionsCmd)
	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsGetCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(backfillCmd)

	submissionsListCmd.Flags().String("client", "", "client id (required for super admins)")
	submissionsListCmd.Flags().String("account", "", "account id")
	submissionsListCmd.Flags().String("status", "", "received, delivering, delivered or failed")
	submissionsListCmd.Flags().String("program", "", "program id")
	submissionsListCmd.Flags().String("location", "", "location id")
	submissionsListCmd.Flags().Duration("since", 0, "only submissions created within this window")
	submissionsListCmd.Flags().Int("page", 1, "page number")
	submissionsListCmd.Flags().Int("limit", 50, "page size")

	auditCmd.Flags().String("client", "", "client id (required for super admins)")
	auditCmd.Flags().String("submission", "", "submission id")
	auditCmd.Flags().Int("limit", 0, "maximum entries (server default when 0)")

	requeueCmd.Flags().String("reason", "", "reason recorded in the audit log")

	backfillCmd.Flags().Duration("older-than", 0, "minimum age of stuck submissions (server default when 0)")
	backfillCmd.Flags().Int("limit", 0, "maximum submissions to enqueue (server default when 0)")
}
