package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/w4lkr/shopsync/pkg/storage"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the recorded sync runs.",
	Long:  "Prints statistics about the recorded sync runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveDataDir(cmd)
		if err != nil {
			return err
		}

		history, err := storage.OpenHistory(historyPath(dir))
		if err != nil {
			return err
		}
		defer history.Close()

		ctx := context.Background()
		stats, err := history.GetStats(ctx)
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No sync runs recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "SOURCE\tRUNS\tCACHED\t")

		var totalRuns, totalCached int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t\n", s.Source, s.Runs, s.CachedRuns)
			totalRuns += s.Runs
			totalCached += s.CachedRuns
		}

		fmt.Fprintln(w, " \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t\n", totalRuns, totalCached)

		w.Flush()

		cs, err := history.GetChangeStats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\nCatalog changes: %d added, %d updated, %d removed\n", cs.Added, cs.Updated, cs.Removed)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
