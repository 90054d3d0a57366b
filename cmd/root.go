package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/config"
	"github.com/giftwise/giftwise-cli/internal/pipeline"
	"github.com/giftwise/giftwise-cli/internal/resilience"
	"github.com/giftwise/giftwise-cli/internal/store"
	anthropicpkg "github.com/giftwise/giftwise-cli/pkg/anthropic"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "giftwise",
	Short: "AI gift recommendation pipeline",
	Long:  "Turns an intake form and an optional photo into ranked gift recommendations with a personalized letter, via staged Claude inference over a local gift catalog.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initStore(cmd *cobra.Command) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "giftwise.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(cmd.Context(), cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline builds the store and the pipeline with the full client chain.
// The caller owns closing the returned store.
func initPipeline(cmd *cobra.Command) (*pipeline.Pipeline, store.Store, error) {
	st, err := initStore(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}

	var client anthropicpkg.Client = anthropicpkg.NewClient(cfg.Anthropic.Key)
	client = anthropicpkg.NewRateLimitedClient(client, cfg.Anthropic.RequestsPerSecond)
	retryCfg := resilience.DefaultRetryConfig()
	if cfg.Anthropic.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.Anthropic.MaxRetries
	}
	client = anthropicpkg.NewRetryClient(client, retryCfg)

	vocab, err := loadVocab()
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	return pipeline.New(cfg, st, client, vocab), st, nil
}

func loadVocab() (*pipeline.Vocabulary, error) {
	if cfg.Pipeline.VocabPath == "" {
		return pipeline.DefaultVocabulary(), nil
	}
	v, err := pipeline.LoadVocabulary(cfg.Pipeline.VocabPath)
	if err != nil {
		return nil, eris.Wrap(err, "load vocabulary")
	}
	return v, nil
}
