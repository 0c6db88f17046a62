package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/w4lkr/shopsync/pkg/storage"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent sync runs (default 20)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		dir, err := resolveDataDir(cmd)
		if err != nil {
			return err
		}
		history, err := storage.OpenHistory(historyPath(dir))
		if err != nil {
			return err
		}
		defer history.Close()

		runs, err := history.ListRuns(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sync runs recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "STARTED\tSOURCE\tPRODUCTS\tCATEGORIES\tERRORS\tCACHED\t")
		for _, r := range runs {
			cached := ""
			if r.UsedCachedData {
				cached = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Source, r.ItemCount, r.CategoryCount, r.ErrorCount, cached)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().Int("limit", 20, "Number of recent runs to show")
}
