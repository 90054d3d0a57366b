package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/model"
)

var (
	runSessionID string
	runName      string
	runAge       int
	runInterests []string
	runBudget    string
	runOccasion  string
	runNotes     string
	runImage     string
	runVerbose   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the recommendation pipeline for one session",
	Long:  "Runs an existing session by id, or creates one from the form flags and runs it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		p, st, err := initPipeline(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sessionID := runSessionID
		if sessionID == "" {
			if runName == "" {
				return eris.New("either --session or --name is required")
			}
			session, err := st.CreateSession(ctx, model.FormData{
				RecipientName: runName,
				Age:           runAge,
				Interests:     runInterests,
				Budget:        model.BudgetLevel(runBudget),
				Occasion:      runOccasion,
				Notes:         runNotes,
				ImageRef:      runImage,
			})
			if err != nil {
				return eris.Wrap(err, "create session")
			}
			sessionID = session.ID
			zap.L().Info("session created", zap.String("session_id", sessionID))
		}

		var sink model.EventSink
		if runVerbose {
			sink = func(ev model.Event) {
				switch ev.Type {
				case model.EventTypeStatus:
					fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Stage, ev.Status)
				case model.EventTypeError:
					fmt.Fprintf(os.Stderr, "error: %s\n", ev.Error)
				}
			}
		}

		summary, err := p.Run(ctx, sessionID, sink)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("session complete",
			zap.String("session_id", sessionID),
			zap.Int("recommendations", summary.RecommendationCount),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session", "", "existing session id to run")
	runCmd.Flags().StringVar(&runName, "name", "", "recipient name (creates a new session)")
	runCmd.Flags().IntVar(&runAge, "age", 0, "recipient age in years")
	runCmd.Flags().StringSliceVar(&runInterests, "interests", nil, "comma-separated recipient interests")
	runCmd.Flags().StringVar(&runBudget, "budget", "medium", "budget level (low, medium, high)")
	runCmd.Flags().StringVar(&runOccasion, "occasion", "", "gift occasion (birthday, holiday, ...)")
	runCmd.Flags().StringVar(&runNotes, "notes", "", "free-form notes about the recipient")
	runCmd.Flags().StringVar(&runImage, "image", "", "image URL or base64 data for the vision stage")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "print stage progress to stderr")
	rootCmd.AddCommand(runCmd)
}
