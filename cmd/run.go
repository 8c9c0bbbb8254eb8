// Package cmd provides CLI commands for the watchkit application.
// This file implements the run command, the long-lived watcher process.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adalundhe/watchkit/core/config"
	"github.com/adalundhe/watchkit/core/engine"
)

var (
	runConfigPath string
	runLogLevel   string
)

// runCmd starts the watcher and blocks until shutdown.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start watching and dispatching",
	Long: `Start the watcher process. It loads watchkit.yaml, subscribes to the
configured watch roots, and runs until interrupted.

SIGHUP reloads the configuration in place: the watch loops restart with
the new rule set while the process and its PID survive.

Examples:
  watchkit run                         # Find watchkit.yaml upward from cwd
  watchkit run -c ./watchkit.yaml      # Explicit config path
  watchkit run --log-level debug       # Override the configured level`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to watchkit.yaml (default: search upward from cwd)")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}

	level := cfg.Engine.LogLevel
	if runLogLevel != "" {
		level = runLogLevel
	}
	log := newLogger(level)
	slog.SetDefault(log)

	repoRoot, err := cfg.ResolveRoot(configPath)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, repoRoot, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				log.Info("reload signal received", "config", configPath)
				_, next, err := loadConfig(configPath)
				if err != nil {
					log.Error("reload aborted, keeping previous configuration", "error", err)
					continue
				}
				if err := eng.Reload(next); err != nil {
					log.Error("reload aborted, keeping previous configuration", "error", err)
				}
			default:
				log.Info("shutdown signal received", "signal", sig.String())
				eng.Stop()
				cancel()
				return
			}
		}
	}()

	log.Info("watchkit starting",
		"config", configPath,
		"repo_root", repoRoot,
		"watches", len(cfg.Watches),
		"rules", len(cfg.Rules),
	)

	if err := eng.Run(ctx, cfg.PidFilePath(repoRoot)); err != nil && err != context.Canceled {
		return err
	}
	log.Info("watchkit stopped")
	return nil
}

// loadConfig resolves the config path (explicit flag or upward search)
// and loads it.
func loadConfig(path string) (string, *config.Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", nil, err
		}
		path, err = config.Find(cwd)
		if err != nil {
			return "", nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", path, err)
	}
	return path, cfg, nil
}

// newLogger builds the process-wide structured logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
