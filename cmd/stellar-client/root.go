package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-offline-player/internal/config"
	"github.com/edumarques81/stellar-offline-player/internal/logging"
)

var (
	cfgFile string
	jsonOut bool
	debug   bool

	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "stellar-client",
	Short: "Personal media player with offline support",
	Long: `Stellar Client plays search results and uploaded songs through MPD,
remembers what you played, and keeps working when the media service is
unreachable by serving cached resources and queueing uploads for later.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.stellar-client.toml)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logCloser = logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		JSON:       jsonOut,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return nil
}
