package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/geotree/pkg/db"
	"github.com/ssargent/geotree/pkg/spatial/merge"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <point> <id>",
	Short: "Delete the record with the given id at a point",
	Long: `Delete a record from the database, identified by the point it was
inserted at and its record id.

Example:
  geotree delete 1.5,2.0 1zJ...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := fromContext(cmd)
		if err != nil {
			return err
		}
		pt, err := parsePoint(args[0])
		if err != nil {
			return fmt.Errorf("invalid point: %w", err)
		}

		if err := database.Batch(cmd.Context(), db.BatchRequest[float64, db.DemoValue]{
			Deletes: []merge.Delete[float64]{{Point: pt, ID: args[1]}},
		}); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Printf("deleted record %s at %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
