package cmd

import (
	"fmt"
	"os"

	"github.com/photogrid/gallery/internal/config"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "galleryd",
	Short: "Photo gallery gate and comments server",
	Long: `galleryd authenticates every request to the photo gallery, serves the
comment API and the private image routes, and proxies pages to the frontend.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		level := cfg.Log.Level
		if cfg.Debug {
			level = "debug"
		}
		logging.Init(logging.Config{Level: level, Format: cfg.Log.Format})
		return nil
	},
}

// loadConfig reads the environment, then applies the global flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loaded, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db-url") {
		loaded.DatabaseURL, _ = flags.GetString("db-url")
	}
	if flags.Changed("server-addr") {
		loaded.ServerAddr, _ = flags.GetString("server-addr")
	}
	if flags.Changed("debug") {
		loaded.Debug, _ = flags.GetBool("debug")
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

func init() {
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
