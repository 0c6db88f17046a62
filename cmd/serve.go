package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/w4lkr/shopsync/internal/server"
	"github.com/w4lkr/shopsync/internal/utils"
	"github.com/w4lkr/shopsync/pkg/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog API and keep the snapshot fresh on a schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildSyncStack(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		// Serve whatever the last sync left behind while the first
		// scheduled run is still on its way.
		if snap, err := st.store.Load(); err == nil {
			st.index.Update(snap.Items, snap.Categories)
		} else {
			utils.Log.Warnf("Could not load the stored snapshot: %v", err)
		}

		noSync, _ := cmd.Flags().GetBool("no-sync")
		if !noSync {
			sched, err := syncer.NewScheduler(st.syncer, syncer.Config{
				At: viper.GetString("sync.schedule"),
			}, utils.Log)
			if err != nil {
				return err
			}
			go sched.Run(context.Background())
		}

		listenAddr, _ := cmd.Flags().GetString("listen")
		if listenAddr == "" {
			listenAddr = viper.GetString("server.listen")
		}

		srv := server.New(st.index, st.history,
			viper.GetString("server.username"),
			viper.GetString("server.password"))
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (default from config, :8080)")
	serveCmd.Flags().Bool("no-sync", false, "Serve the stored snapshot without the background scheduler")
}
