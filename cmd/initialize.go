// Package cmd provides CLI commands for the watchkit application.
// This file implements the init command for scaffolding a starter
// configuration.
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adalundhe/watchkit/core/config"
)

var initForce bool

// initCmd writes a commented starter watchkit.yaml.
var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Write a starter configuration",
	Long: `Write a commented starter watchkit.yaml into the given directory
(default: current directory). Refuses to overwrite an existing file
unless --force is given.

Examples:
  watchkit init
  watchkit init ./myrepo
  watchkit init --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	path := filepath.Join(dir, config.DefaultFileName)

	if err := config.WriteStarter(path, initForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
