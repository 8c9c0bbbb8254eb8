// Package dispatch expands matched rules into batches of external
// process actions and runs them sequentially or across a bounded worker
// pool.
package dispatch

import (
	"time"

	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/match"
)

// TimeoutExitCode is the sentinel exit code recorded when an action is
// killed on timeout.
const TimeoutExitCode = -1

// ActionConfig describes one runnable external command. Cwd is relative
// to the repo root and has already been traversal-checked at
// configuration-validation time.
type ActionConfig struct {
	Name    string
	Cmd     []string
	Cwd     string
	Env     map[string]string
	Timeout time.Duration
}

// ActionResult is the immutable outcome of a single action execution.
type ActionResult struct {
	ActionName string
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMs float64
	TimedOut   bool
}

// Pair couples a matched rule with the events that satisfied it in one
// dispatch cycle.
type Pair struct {
	Rule   *match.RuleSpec
	Events []event.FileEvent
}

// Job is one rule's resolved action list plus its triggering events. A
// transient unit of work, never persisted.
type Job struct {
	ID      string
	Rule    *match.RuleSpec
	Events  []event.FileEvent
	Actions []ActionConfig
}
