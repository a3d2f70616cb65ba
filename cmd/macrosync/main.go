// Package main is the entry point for macrosync.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/config"
	"github.com/pandeptwidyaop/macrosync/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "macrosync",
	Short: "Keep keyboard macros in sync with a headless macro device",
	Long: `macrosync reads and writes the macro documents stored on a small
networked device over ssh. It can run as a console server with an HTTP API,
or perform one-off fetch, push and preset operations from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig falls back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	c, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config %s not found, using defaults\n", path)
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, versionCmd, hashTokenCmd, fetchCmd, pushCmd, watchCmd, presetsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
