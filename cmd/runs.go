package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/giftwise/giftwise-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect session and stage run history",
	Long:  "Commands for listing sessions and viewing the per-stage execution ledger.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := st.ListSessionsByStatus(ctx, model.SessionStatus(status), limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessionList(os.Stdout, sessions)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the stage ledger for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		session, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		runs, err := st.ListStageRuns(ctx, session.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"session":    session,
				"stage_runs": runs,
			})
		}

		fmt.Fprintf(os.Stdout, "Session %s  status=%s  created=%s\n\n",
			session.ID, session.Status, session.CreatedAt.Format("2006-01-02 15:04:05"))
		formatStageRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", string(model.SessionStatusCompleted), "session status to list (not_started, processing, completed, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of sessions to display")
	runsShowCmd.Flags().Bool("json", false, "emit the full ledger as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatSessionList writes a tabular list of sessions to w.
func formatSessionList(out io.Writer, sessions []model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t-------")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.ID,
			s.Status,
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatStageRuns writes the stage ledger for one session to w.
func formatStageRuns(out io.Writer, runs []model.StageRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tSTATUS\tSTARTED\tDURATION\tNOTE")
	_, _ = fmt.Fprintln(w, "-----\t------\t-------\t--------\t----")
	for _, r := range runs {
		started := ""
		if r.StartedAt != nil {
			started = r.StartedAt.Format("15:04:05")
		}
		note := r.Error
		if len(note) > 60 {
			note = note[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Stage,
			r.Status,
			started,
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			note,
		)
	}
	_ = w.Flush()
}
