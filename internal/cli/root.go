// Package cli implements the teampulse command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/colthorp/teampulse-go/internal/config"
	"github.com/colthorp/teampulse-go/internal/core"
	"github.com/colthorp/teampulse-go/internal/logging"
)

// Global flags
var (
	configPath string
	verbose    bool
	quiet      bool
	format     string
)

// cfg is loaded before any subcommand runs.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "teampulse",
	Short:   "Team activity reports from GitHub, Jira and Bonusly",
	Long:    `Aggregates pull requests, reviews, commits, tickets and recognition for a roster of people into monthly statistics.`,
	Version: core.Version,

	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./teampulse.yaml or ~/.teampulse/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format: table, json or xlsx")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c

	level := cfg.Log.Level
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "warn"
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
	logging.Debug().Str("config", configPath).Str("cache", cfg.Cache.Backend).Msg("Configuration loaded")
	return nil
}
