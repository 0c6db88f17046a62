package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/w4lkr/shopsync/pkg/storage"
)

// syncCmd implements: shopsync sync
//
// Runs one sync cycle: fetch the catalog from the store API, fall back to
// scraping the listing pages when the API is unreachable, merge into the
// stored snapshot and print what changed.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the catalog once and update the local snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'shopsync sync --help'", args[0])
		}

		st, err := buildSyncStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		prev, err := st.store.Load()
		firstSync := err == nil && len(prev.Items) == 0

		ctx := context.Background()
		run, err := st.syncer.Run(ctx)
		if err != nil {
			return err
		}

		if run.UsedCachedData {
			fmt.Printf("⚠️  Store unreachable, the snapshot from the last good sync stays in place (%d products).\n", run.ItemCount)
			return nil
		}

		if firstSync {
			fmt.Printf("✨ First sync, stored %d products in %d categories.\n", run.ItemCount, run.CategoryCount)
			return nil
		}

		changes, err := st.history.ListChanges(ctx, 500)
		if err != nil {
			return err
		}
		printed := 0
		for _, c := range changes {
			if c.RunID != run.ID {
				continue
			}
			printChange(c)
			printed++
		}
		if printed == 0 {
			fmt.Println("No changes since the last sync.")
		}
		fmt.Printf("Snapshot: %d products, %d categories (source: %s)\n", run.ItemCount, run.CategoryCount, run.Source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func printChange(c storage.ChangeRecord) {
	var emoji string
	switch c.ChangeType {
	case storage.ChangeAdded:
		emoji = "🆕"
	case storage.ChangeUpdated:
		emoji = "🔄"
	case storage.ChangeRemoved:
		emoji = "❌"
	}

	name := c.Name
	if name == "" {
		name = c.Key
	}
	fmt.Printf("%s  %-8s  %s\n", emoji, c.Kind, name)
}
