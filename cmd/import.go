package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/catalog"
)

var importXLSXPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import catalog items from an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		items, err := catalog.ReadItems(importXLSXPath)
		if err != nil {
			return eris.Wrap(err, "read catalog")
		}

		count, err := st.UpsertCatalogItems(ctx, items)
		if err != nil {
			return eris.Wrap(err, "upsert catalog")
		}

		zap.L().Info("import complete",
			zap.Int("items", count),
			zap.String("xlsx", importXLSXPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to XLSX workbook (required)")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}
