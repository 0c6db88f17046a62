package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/w4lkr/shopsync/pkg/index"
	"github.com/w4lkr/shopsync/pkg/storage"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the stored snapshot for products",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := loadIndex(cmd)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		results := ix.Search(query)
		if len(results) == 0 {
			fmt.Println("No products matched.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PRODUCT\tPRICE\tMATCH\tURL\t")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t\n", r.Item.Name, r.Item.Price, r.Score*100, r.Item.URL)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

// loadIndex builds a search index from the stored snapshot. Used by the
// read-only commands, which never touch the remote store.
func loadIndex(cmd *cobra.Command) (*index.Index, error) {
	dir, err := resolveDataDir(cmd)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(dir)
	if err != nil {
		return nil, err
	}
	snap, err := store.Load()
	if err != nil {
		return nil, err
	}
	if len(snap.Items) == 0 {
		return nil, fmt.Errorf("no snapshot found in %s, run 'shopsync sync' first", dir)
	}

	ix := index.New()
	ix.Update(snap.Items, snap.Categories)
	return ix, nil
}
