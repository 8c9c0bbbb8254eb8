package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/adalundhe/watchkit/core/errs"
	"github.com/adalundhe/watchkit/core/event"
)

// buildEnv assembles the fixed environment contract for an action
// process on top of the parent environment.
func buildEnv(action ActionConfig, events []event.FileEvent, ruleName, watchName, repoRoot string) ([]string, error) {
	batch, err := event.BatchJSON(events)
	if err != nil {
		return nil, fmt.Errorf("encode event batch: %w", err)
	}

	env := os.Environ()
	env = append(env,
		"REPO_ROOT="+repoRoot,
		"RULE_NAME="+ruleName,
		"WATCH_NAME="+watchName,
		fmt.Sprintf("EVENT_COUNT=%d", len(events)),
		"EVENTS_JSON="+batch,
	)
	for key, value := range action.Env {
		env = append(env, key+"="+value)
	}
	return env, nil
}

// runCommand executes one action as an external process. A timeout kills
// the process and marks the result TimedOut with the sentinel exit code.
// A launch failure (binary not found, exec error) is an ActionError.
func runCommand(action ActionConfig, events []event.FileEvent, ruleName, watchName, repoRoot string) (ActionResult, error) {
	env, err := buildEnv(action, events, ruleName, watchName, repoRoot)
	if err != nil {
		return ActionResult{}, &errs.ActionError{Action: action.Name, Err: err}
	}

	ctx := context.Background()
	if action.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, action.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, action.Cmd[0], action.Cmd[1:]...)
	cmd.Dir = filepath.Join(repoRoot, action.Cwd)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	result := ActionResult{
		ActionName: action.Name,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: elapsed,
	}

	switch {
	case runErr == nil:
		result.ExitCode = 0
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = TimeoutExitCode
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// The process never ran: not a non-zero exit, a launch
			// failure.
			return ActionResult{}, &errs.ActionError{Action: action.Name, Err: runErr}
		}
	}

	return result, nil
}
