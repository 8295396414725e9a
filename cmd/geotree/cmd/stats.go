package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print forest diagnostics",
	Long: `Print per-tree and aggregate diagnostics: record count, ref count,
and depth for every root tree, adapted from the original's debug dump tool.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := fromContext(cmd)
		if err != nil {
			return err
		}
		s, err := database.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("stats failed: %w", err)
		}
		for _, t := range s.Trees {
			fmt.Printf("tree %d: %d record(s), %d ref(s), depth %d\n", t.ID, t.Records, t.Refs, t.Depth)
		}
		fmt.Printf("%d tree(s), %d record(s) total\n", s.TotalTrees, s.TotalRecords)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
