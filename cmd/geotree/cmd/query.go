package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <min> <max>",
	Short: "Run a bounding-box query",
	Long: `Query the database for every record inside a bounding box.

min and max are comma-separated coordinate lists, one value per axis.

Example:
  geotree query 0,0 10,10`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := fromContext(cmd)
		if err != nil {
			return err
		}
		bbox, err := parseBBox(args[0], args[1])
		if err != nil {
			return fmt.Errorf("invalid bounding box: %w", err)
		}

		count := 0
		for res := range database.Query(cmd.Context(), bbox) {
			if res.Err != nil {
				return fmt.Errorf("query failed: %w", res.Err)
			}
			coords := make([]float64, len(res.Record.Point))
			for i, c := range res.Record.Point {
				coords[i] = c.Lo
			}
			fmt.Printf("%s %v %q\n", res.Record.Value.RecordID(), coords, res.Record.Value.Payload())
			count++
		}
		fmt.Printf("%d record(s)\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
