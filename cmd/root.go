package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "watchkit",
	Short: "Watchkit - A debounced file watcher with rule-based actions",
	Long: `Watchkit watches repository files for changes, coalesces bursts of
events per path, and runs configured actions or handlers when a file
settles. Configuration lives in watchkit.yaml at the repository root.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}
