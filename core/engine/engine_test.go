package engine

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/watchkit/core/config"
	"github.com/adalundhe/watchkit/core/event"
)

// testConfig builds a validated config over root with one watch on
// data/ and one rule appending the triggering event count to out.
func testConfig(t *testing.T, root, out string) *config.Config {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))

	debounce := 50
	cfg := config.Default()
	cfg.Engine.RepoRoot = root
	cfg.Engine.DebounceMs = debounce
	cfg.Watches = []config.WatchConfig{
		{Name: "content", Paths: []string{"data"}},
	}
	cfg.Actions = []config.ActionConfig{
		{Name: "record", Cmd: []string{"sh", "-c", "echo $EVENT_COUNT >> $REPO_ROOT/" + out}},
	}
	cfg.Rules = []config.RuleConfig{
		{
			Name:  "record-changes",
			Watch: "content",
			On:    []string{"added", "modified"},
			Match: []string{"*.jsonl"},
			Do:    []string{"record"},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

// startEngine runs an engine in the background and waits for the watch
// loops to come up.
func startEngine(t *testing.T, eng *Engine, pidFile string) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, pidFile) }()

	require.Eventually(t, func() bool { return eng.State() == Running }, 5*time.Second, 10*time.Millisecond,
		"engine should reach the running state")
	// Give the fsnotify subscriptions a moment to become effective.
	time.Sleep(50 * time.Millisecond)
	return cancel, done
}

func TestEngine_ProcessesFileChanges(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "fired.log")
	eng, err := New(cfg, root, nil)
	require.NoError(t, err)

	cancel, done := startEngine(t, eng, "")
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "a.jsonl"), []byte("{\"x\":1}\n"), 0o644))

	outPath := filepath.Join(root, "fired.log")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(outPath)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "the rule's action should have run")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, Stopped, eng.State())
}

func TestEngine_IgnoresNonMatchingAndTempFiles(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "fired.log")
	eng, err := New(cfg, root, nil)
	require.NoError(t, err)

	cancel, done := startEngine(t, eng, "")
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "notes.yaml"), []byte("a: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "a.jsonl.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", ".hidden"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	_, statErr := os.Stat(filepath.Join(root, "fired.log"))
	assert.True(t, os.IsNotExist(statErr), "no action should fire for filtered files")

	cancel()
	<-done
}

func TestEngine_NewDirectoryJoinsRecursiveWatch(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "fired.log")
	eng, err := New(cfg, root, nil)
	require.NoError(t, err)

	cancel, done := startEngine(t, eng, "")
	defer cancel()

	sub := filepath.Join(root, "data", "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	// Re-touch on every poll so the write cannot race the directory
	// joining the subscription.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(sub, "b.jsonl"), []byte("{\"x\":2}\n"), 0o644)
		_, err := os.Stat(filepath.Join(root, "fired.log"))
		return err == nil
	}, 5*time.Second, 100*time.Millisecond, "files in new subdirectories should be picked up")

	cancel()
	<-done
}

func TestEngine_PidFileLifecycle(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "fired.log")
	eng, err := New(cfg, root, nil)
	require.NoError(t, err)

	pidFile := filepath.Join(root, ".watchkit.pid")
	cancel, done := startEngine(t, eng, pidFile)
	defer cancel()

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err, "pid file should exist while running")
	pid, err := strconv.Atoi(string(raw))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	cancel()
	<-done
	_, statErr := os.Stat(pidFile)
	assert.True(t, os.IsNotExist(statErr), "pid file should be removed on shutdown")
}

func TestEngine_ReloadSwapsRules(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "before.log")
	eng, err := New(cfg, root, nil)
	require.NoError(t, err)

	cancel, done := startEngine(t, eng, "")
	defer cancel()

	next := testConfig(t, root, "after.log")
	next.Rules[0].Match = []string{"*.yaml"}
	require.NoError(t, eng.Reload(next))

	require.Eventually(t, func() bool { return eng.State() == Running }, 5*time.Second, 10*time.Millisecond,
		"engine should be running again after the reload")
	time.Sleep(50 * time.Millisecond)

	// Re-touch the file on every poll so a write does not slip in
	// before the restarted loops are subscribed.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "data", "cfg.yaml"), []byte("a: 1\n"), 0o644)
		_, err := os.Stat(filepath.Join(root, "after.log"))
		return err == nil
	}, 5*time.Second, 100*time.Millisecond, "the reloaded rule set should be in effect")

	cancel()
	<-done
}

func TestEngine_StopIsClean(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "fired.log")
	eng, err := New(cfg, root, nil)
	require.NoError(t, err)

	cancel, done := startEngine(t, eng, "")
	defer cancel()

	eng.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err, "Stop should end the run loop without an error")
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, Stopped, eng.State())
}

func TestEngine_New_RejectsBrokenRules(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "fired.log")
	cfg.Rules[0].Match = []string{""}

	_, err := New(cfg, root, nil)
	assert.Error(t, err)
}

func TestEngine_ProcessOnce(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, "fired.log")
	cfg.Engine.DebounceMs = 0
	eng, err := New(cfg, root, nil)
	require.NoError(t, err)

	path := filepath.Join(root, "data", "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"x\":1}\n"), 0o644))

	// No watch loops running; the single cycle still dispatches.
	require.NoError(t, eng.ProcessOnce(path, event.Modified))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(root, "fired.log"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.Error(t, eng.ProcessOnce("/outside/elsewhere.jsonl", event.Modified))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "restarting", Restarting.String())
}
