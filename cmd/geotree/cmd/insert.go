package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/geotree/pkg/db"
	"github.com/ssargent/geotree/pkg/spatial"
)

var insertCmd = &cobra.Command{
	Use:   "insert <point> <payload>",
	Short: "Insert a record at a point",
	Long: `Insert a record into the database at the given point.

point is a comma-separated coordinate list, one value per axis.

Example:
  geotree insert 1.5,2.0 hello`,
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
		value := db.NewDemoValue([]byte(args[1]))

		if err := database.Batch(cmd.Context(), db.BatchRequest[float64, db.DemoValue]{
			Inserts: []spatial.Record[float64, db.DemoValue]{{Point: pt, Value: value}},
		}); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
		fmt.Printf("inserted record %s at %s\n", value.RecordID(), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(insertCmd)
}
