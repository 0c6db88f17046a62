package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/w4lkr/shopsync/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent catalog changes (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		dir, err := resolveDataDir(cmd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(historyPath(dir)); err != nil {
			return fmt.Errorf("run history not found: %s", historyPath(dir))
		}

		history, err := storage.OpenHistory(historyPath(dir))
		if err != nil {
			return err
		}
		defer history.Close()

		changes, err := history.ListChanges(context.Background(), limit)
		if err != nil {
			return err
		}
		for _, c := range changes {
			ts := c.OccurredAt.Format("2006-01-02 15:04:05")
			name := c.Name
			if name == "" {
				name = c.Key
			}
			fmt.Printf("%s  %-7s  %-8s  %s\n", ts, c.ChangeType, c.Kind, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
}
