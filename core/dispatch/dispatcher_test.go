package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/watchkit/core/errs"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/match"
)

func shellAction(name, script string) ActionConfig {
	return ActionConfig{Name: name, Cmd: []string{"sh", "-c", script}}
}

func actionRule(name string, continueOnError bool, actions ...string) *match.RuleSpec {
	return &match.RuleSpec{
		Name:            name,
		Patterns:        []string{"*.jsonl"},
		Watch:           "content",
		ContinueOnError: continueOnError,
		Actions:         actions,
	}
}

func testEvents() []event.FileEvent {
	return []event.FileEvent{
		{Change: event.Modified, AbsPath: "/repo/a.jsonl", RelPath: "a.jsonl", WatchName: "content"},
	}
}

func TestDispatcher_Dispatch_Success(t *testing.T) {
	d := New([]ActionConfig{
		shellAction("echo", "echo hello"),
	}, t.TempDir(), 1, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", false, "echo"), Events: testEvents()}})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "echo", results[0].ActionName)
	assert.Equal(t, 0, results[0].ExitCode)
	assert.Equal(t, "hello\n", results[0].Stdout)
	assert.False(t, results[0].TimedOut)
}

func TestDispatcher_Dispatch_EnvironmentContract(t *testing.T) {
	root := t.TempDir()
	d := New([]ActionConfig{
		shellAction("env-dump", `echo "$REPO_ROOT|$RULE_NAME|$WATCH_NAME|$EVENT_COUNT"; echo "$EVENTS_JSON"`),
	}, root, 1, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("my-rule", false, "env-dump"), Events: testEvents()}})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Stdout, root+"|my-rule|content|1")
	assert.Contains(t, results[0].Stdout, `"path_rel":"a.jsonl"`)
	assert.Contains(t, results[0].Stdout, `"change":"modified"`)
}

func TestDispatcher_Dispatch_ExtraEnvPassedThrough(t *testing.T) {
	action := shellAction("custom-env", `echo "$MY_FLAG"`)
	action.Env = map[string]string{"MY_FLAG": "enabled"}
	d := New([]ActionConfig{action}, t.TempDir(), 1, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", false, "custom-env"), Events: testEvents()}})

	require.NoError(t, err)
	assert.Equal(t, "enabled\n", results[0].Stdout)
}

func TestDispatcher_Dispatch_StopsAfterFailure(t *testing.T) {
	d := New([]ActionConfig{
		shellAction("fail", "exit 3"),
		shellAction("after", "echo should-not-run"),
	}, t.TempDir(), 1, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", false, "fail", "after"), Events: testEvents()}})

	require.NoError(t, err, "a non-zero exit is a result, not an error")
	require.Len(t, results, 1, "second action must not run after a failure")
	assert.Equal(t, 3, results[0].ExitCode)
}

func TestDispatcher_Dispatch_ContinueOnError(t *testing.T) {
	d := New([]ActionConfig{
		shellAction("fail", "exit 3"),
		shellAction("after", "echo still-runs"),
	}, t.TempDir(), 1, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", true, "fail", "after"), Events: testEvents()}})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 3, results[0].ExitCode)
	assert.Equal(t, "still-runs\n", results[1].Stdout)
}

func TestDispatcher_Dispatch_LaunchFailureIsActionError(t *testing.T) {
	d := New([]ActionConfig{
		{Name: "missing", Cmd: []string{"definitely-not-a-real-binary-xyz"}},
		shellAction("after", "echo no"),
	}, t.TempDir(), 1, nil)

	// Launch failures surface even when the rule continues on error.
	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", true, "missing", "after"), Events: testEvents()}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAction))
	assert.Empty(t, results)
}

func TestDispatcher_Dispatch_Timeout(t *testing.T) {
	slow := shellAction("slow", "sleep 5")
	slow.Timeout = 100 * time.Millisecond
	d := New([]ActionConfig{slow}, t.TempDir(), 1, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", false, "slow"), Events: testEvents()}})

	require.NoError(t, err, "a timeout is a failed result, not an error")
	require.Len(t, results, 1)
	assert.True(t, results[0].TimedOut)
	assert.Equal(t, TimeoutExitCode, results[0].ExitCode)
}

func TestDispatcher_Dispatch_UnknownActionReference(t *testing.T) {
	d := New(nil, t.TempDir(), 1, nil)

	_, err := d.Dispatch([]Pair{{Rule: actionRule("r", false, "ghost"), Events: testEvents()}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfig))
}

func TestDispatcher_Dispatch_CwdRelativeToRoot(t *testing.T) {
	root := t.TempDir()
	action := shellAction("pwd", "pwd")
	action.Cwd = "sub"
	d := New([]ActionConfig{action}, root, 1, nil)

	// The subdirectory must exist for the process to start there.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))

	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", false, "pwd"), Events: testEvents()}})

	require.NoError(t, err)
	assert.Contains(t, results[0].Stdout, "/sub")
}

func TestDispatcher_Dispatch_RulesWithoutActionsAreSkipped(t *testing.T) {
	d := New(nil, t.TempDir(), 1, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("handler-only", false), Events: testEvents()}})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDispatcher_Dispatch_ConcurrentJobs(t *testing.T) {
	d := New([]ActionConfig{
		shellAction("a1", "echo one"),
		shellAction("a2", "echo two"),
		shellAction("a3", "echo three"),
	}, t.TempDir(), 4, nil)

	pairs := []Pair{
		{Rule: actionRule("r1", false, "a1"), Events: testEvents()},
		{Rule: actionRule("r2", false, "a2"), Events: testEvents()},
		{Rule: actionRule("r3", false, "a3"), Events: testEvents()},
	}

	results, err := d.Dispatch(pairs)

	require.NoError(t, err)
	require.Len(t, results, 3)
	names := map[string]bool{}
	for _, r := range results {
		assert.Equal(t, 0, r.ExitCode)
		names[r.ActionName] = true
	}
	assert.True(t, names["a1"] && names["a2"] && names["a3"], "every job ran exactly once")
}

func TestDispatcher_Dispatch_ConcurrentActionsStaySequentialInJob(t *testing.T) {
	d := New([]ActionConfig{
		shellAction("fail", "exit 1"),
		shellAction("after", "echo no"),
	}, t.TempDir(), 4, nil)

	results, err := d.Dispatch([]Pair{{Rule: actionRule("r", false, "fail", "after"), Events: testEvents()}})

	require.NoError(t, err)
	require.Len(t, results, 1, "in-job ordering and stop-on-failure hold in concurrent mode too")
}
