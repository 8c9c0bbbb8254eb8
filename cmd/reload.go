// Package cmd provides CLI commands for the watchkit application.
// This file implements the reload command, which signals a running
// watcher to reload its configuration.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var reloadConfigPath string

// reloadCmd sends SIGHUP to the watcher named by the PID file.
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Signal a running watcher to reload its configuration",
	Long: `Send a reload signal to the watcher process recorded in the PID file.

The watcher re-reads its configuration and restarts its watch loops
without dropping the process. Exits 1 when no watcher is running, the
PID file is stale, or the signal is refused.

Examples:
  watchkit reload
  watchkit reload -c ./watchkit.yaml`,
	RunE: runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)

	reloadCmd.Flags().StringVarP(&reloadConfigPath, "config", "c", "", "path to watchkit.yaml (default: search upward from cwd)")
}

func runReload(cmd *cobra.Command, args []string) error {
	configPath, cfg, err := loadConfig(reloadConfigPath)
	if err != nil {
		return err
	}
	repoRoot, err := cfg.ResolveRoot(configPath)
	if err != nil {
		return err
	}

	pidPath := cfg.PidFilePath(repoRoot)
	raw, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no watcher running: pid file %s not found", pidPath)
		}
		return fmt.Errorf("read pid file %s: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return fmt.Errorf("pid file %s is corrupt: %q", pidPath, strings.TrimSpace(string(raw)))
	}

	// Signal 0 probes existence without delivering anything.
	if err := unix.Kill(pid, 0); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("stale pid file %s: process %d is gone", pidPath, pid)
		}
		if errors.Is(err, unix.EPERM) {
			return fmt.Errorf("not permitted to signal process %d", pid)
		}
		return fmt.Errorf("probe process %d: %w", pid, err)
	}

	if err := unix.Kill(pid, unix.SIGHUP); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reload signal sent to process %d\n", pid)
	return nil
}
