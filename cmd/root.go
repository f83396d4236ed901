// Package cmd defines the relaylens CLI commands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaylens/relaylens/internal/config"
	"github.com/relaylens/relaylens/internal/logger"
)

var (
	cfgFile string
	verbose bool

	// Version info, injected from main.
	appVersion   string
	appCommit    string
	appBuildDate string
)

var rootCmd = &cobra.Command{
	Use:   "relaylens",
	Short: "Resilient event relay client with a local inspection API",
	Long: `relaylens maintains a resilient WebSocket connection to an event
relay, buffers outbound messages across outages, and exposes a local HTTP
API plus a terminal dashboard for inspecting the connection and the event
stream.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo stores build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	appVersion = version
	appCommit = commit
	appBuildDate = buildDate
}

// GetVersionInfo returns the stored build metadata.
func GetVersionInfo() (version, commit, buildDate string) {
	return appVersion, appCommit, appBuildDate
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ~/.config/relaylens/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output (debug level)")
}

// initConfig loads configuration with the precedence environment variables
// over the config file over defaults.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if err := config.EnsureConfigDir(); err != nil {
			fmt.Fprintf(os.Stderr, "cannot prepare config directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Dir(config.DefaultConfigPath()))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RELAYLENS")
	viper.AutomaticEnv()

	config.SetDefaults()

	// A missing config file is fine; everything has a default or an env var.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "cannot read config file: %v\n", err)
		}
	}
}

func initLogger() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger.Setup(cfg.Logging)
	return nil
}
