package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/w4lkr/shopsync/internal/utils"
	"github.com/w4lkr/shopsync/pkg/fetch"
	"github.com/w4lkr/shopsync/pkg/index"
	"github.com/w4lkr/shopsync/pkg/scrape"
	"github.com/w4lkr/shopsync/pkg/storage"
	"github.com/w4lkr/shopsync/pkg/syncer"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `     _
 ___| |__   ___  _ __  ___ _   _ _ __   ___
/ __| '_ \ / _ \| '_ \/ __| | | | '_ \ / __|
\__ \ | | | (_) | |_) \__ \ |_| | | | | (__
|___/_| |_|\___/| .__/|___/\__, |_| |_|\___|
                |_|        |___/

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shopsync",
	Short: "A resilient product catalog mirror for WooCommerce-style stores.",
	Long: LOGO + `shopsync keeps a local, searchable mirror of a store's product catalog.
It prefers the store's JSON API, falls back to scraping the public listing
pages when the API is down, and keeps serving the last good snapshot when
everything else fails.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shopsync.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("data", "", "Data directory for snapshots and the run history (default is $HOME/.shopsync)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env file in the working directory feeds the environment before
	// viper reads it. Missing files are fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".shopsync")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.shopsync.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default values for all keys
	viper.SetDefault("store.url", "")
	viper.SetDefault("store.consumer_key", "")
	viper.SetDefault("store.consumer_secret", "")
	viper.SetDefault("store.per_page", 20)
	viper.SetDefault("store.cache_ttl", "1h")
	viper.SetDefault("store.list_url", "")
	viper.SetDefault("sync.schedule", "03:00")
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)

}

// resolveDataDir returns the directory holding snapshots, backups and the
// run history database, creating it when missing.
func resolveDataDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("data")
	if dir == "" {
		var err error
		dir, err = utils.DefaultDataDir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func historyPath(dataDir string) string {
	return filepath.Join(dataDir, "history.sqlite")
}

// syncStack bundles everything a sync needs. Close releases the history
// database handle.
type syncStack struct {
	store   *storage.Store
	history *storage.History
	index   *index.Index
	syncer  *syncer.Syncer
}

func (st *syncStack) Close() {
	if st.history != nil {
		st.history.Close()
	}
}

func buildSyncStack(cmd *cobra.Command) (*syncStack, error) {
	dir, err := resolveDataDir(cmd)
	if err != nil {
		return nil, err
	}

	baseURL := viper.GetString("store.url")
	if baseURL == "" {
		return nil, fmt.Errorf("store.url is not configured, set it in ~/.shopsync.yaml")
	}
	proxy, _ := cmd.Flags().GetString("proxy")

	client, err := fetch.NewClient(fetch.Options{
		BaseURL:        baseURL,
		ConsumerKey:    viper.GetString("store.consumer_key"),
		ConsumerSecret: viper.GetString("store.consumer_secret"),
		PerPage:        viper.GetInt("store.per_page"),
		CacheTTL:       viper.GetDuration("store.cache_ttl"),
		Proxy:          proxy,
	})
	if err != nil {
		return nil, err
	}

	scraper, err := scrape.New(scrape.Options{
		BaseURL:  baseURL,
		ListURL:  viper.GetString("store.list_url"),
		CacheTTL: viper.GetDuration("store.cache_ttl"),
		Proxy:    proxy,
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(dir)
	if err != nil {
		return nil, err
	}
	history, err := storage.OpenHistory(historyPath(dir))
	if err != nil {
		return nil, err
	}
	lock, err := utils.NewSyncLock(dir)
	if err != nil {
		history.Close()
		return nil, err
	}

	ix := index.New()
	return &syncStack{
		store:   store,
		history: history,
		index:   ix,
		syncer: &syncer.Syncer{
			Fetcher: client,
			Scraper: scraper,
			Store:   store,
			History: history,
			Index:   ix,
			Lock:    lock,
			Log:     utils.Log,
		},
	}, nil
}
