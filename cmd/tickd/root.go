package main

import (
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tickd",
	Short: "tickd - durable recurring task scheduler",
	Long: `tickd stores job definitions, computes when each job should next execute
(one-shot, fixed-interval, or cron-expression recurrence, timezone-aware),
persists that state across restarts, and dispatches due jobs.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.toml", "path to configuration file")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobCmd)
}
