package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/giftwise/giftwise-cli/internal/model"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process all pending sessions",
	Long:  "Runs the pipeline for every not_started session, several at a time.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, st, err := initPipeline(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sessions, err := st.ListSessionsByStatus(ctx, model.SessionStatusNotStarted, batchLimit)
		if err != nil {
			return eris.Wrap(err, "list pending sessions")
		}

		return processBatch(ctx, sessions, cfg.Batch.MaxConcurrentSessions, func(ctx context.Context, sessionID string) (*model.RunSummary, error) {
			return p.Run(ctx, sessionID, nil)
		})
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of sessions to process")
	rootCmd.AddCommand(batchCmd)
}

// runFunc is the callback signature for running one session in a batch.
type runFunc func(ctx context.Context, sessionID string) (*model.RunSummary, error)

// processBatch runs sessions concurrently. Individual failures are logged
// and counted, never aborting the batch; the store's processing transition
// keeps two workers off the same session.
func processBatch(ctx context.Context, sessions []model.Session, concurrency int, run runFunc) error {
	if len(sessions) == 0 {
		zap.L().Info("no pending sessions found")
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("sessions", len(sessions)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, session := range sessions {
		sessionID := session.ID
		g.Go(func() error {
			log := zap.L().With(zap.String("session_id", sessionID))

			summary, err := run(gctx, sessionID)
			if err != nil {
				failed.Add(1)
				log.Error("session run failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("session complete",
				zap.Int("recommendations", summary.RecommendationCount),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
