// Package cmd provides CLI commands for the watchkit application.
// This file implements the check command for validating configuration.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/watchkit/core/errs"
)

var checkConfigPath string

// checkCmd validates the configuration without starting anything.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long: `Load and validate watchkit.yaml without starting the watcher.

Every problem in the file is reported at once, not just the first.
Exits 0 when the configuration is valid, 1 otherwise.

Examples:
  watchkit check
  watchkit check -c ./watchkit.yaml`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkConfigPath, "config", "c", "", "path to watchkit.yaml (default: search upward from cwd)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	path, cfg, err := loadConfig(checkConfigPath)
	if err != nil {
		var cfgErr *errs.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration invalid (%d problems):\n", len(cfgErr.Problems))
			for _, p := range cfgErr.Problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", p)
			}
			return fmt.Errorf("configuration invalid")
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK: %s\n", path)
	fmt.Fprint(cmd.OutOrStdout(), cfg.Summary())
	return nil
}
