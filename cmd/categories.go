package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories in the stored snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := loadIndex(cmd)
		if err != nil {
			return err
		}

		cats := ix.Categories()
		if len(cats) == 0 {
			fmt.Println("The snapshot has no categories.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tSLUG\tPRODUCTS\t")
		for _, c := range cats {
			fmt.Fprintf(w, "%s\t%s\t%d\t\n", c.Name, c.Slug, len(ix.ItemsInCategory(c.Name)))
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
