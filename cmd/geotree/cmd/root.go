// Package cmd implements the geotree debug CLI, a cobra tool adapted from
// cmd/freyja/cmd/*.go for poking at a geotree database from a shell: insert
// a point, delete one, run a bounding-box query, or dump forest stats.
// Grounded in the original's src/bin/debug.rs tree-dump tool.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/geotree/pkg/config"
	"github.com/ssargent/geotree/pkg/db"
)

type ctxKey string

const dbCtxKey ctxKey = "db"

var rootCmd = &cobra.Command{
	Use:   "geotree",
	Short: "geotree - embedded spatial storage engine debug tool",
	Long: `geotree is a debug CLI for an embedded, append-friendly spatial
storage engine over multi-dimensional point/interval data.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		dim, _ := cmd.Flags().GetInt("dim")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}

		cfg := config.DefaultConfig()
		database, err := db.FromPath[float64, db.DemoValue](dataDir, dim, db.DecodeDemoValue).
			BranchFactor(cfg.Tree.BranchFactor).
			Inline(cfg.Tree.Inline).
			InlineMaxBytes(cfg.Tree.InlineMaxBytes).
			MaxTreeBytes(cfg.Tree.MaxTreeBytes).
			ExtRecords(cfg.Tree.ExtRecords).
			MaxDepth(cfg.Tree.MaxDepth).
			MaxRecords(cfg.Tree.MaxRecords).
			RebuildDepth(cfg.Tree.RebuildDepth).
			Compress(cfg.CompressTrees).
			Build()
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		cmd.SetContext(context.WithValue(cmd.Context(), dbCtxKey, database))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "data directory for the database")
	rootCmd.PersistentFlags().Int("dim", 2, "number of axes a tree holds")
}

func fromContext(cmd *cobra.Command) (*db.DB[float64, db.DemoValue], error) {
	database, ok := cmd.Context().Value(dbCtxKey).(*db.DB[float64, db.DemoValue])
	if !ok {
		return nil, fmt.Errorf("database not found in context")
	}
	return database, nil
}
