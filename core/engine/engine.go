// Package engine owns the OS-level filesystem subscriptions and the
// reload state machine that swaps configuration without restarting the
// process.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adalundhe/watchkit/core/config"
	"github.com/adalundhe/watchkit/core/debounce"
	"github.com/adalundhe/watchkit/core/dispatch"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/format"
	"github.com/adalundhe/watchkit/core/match"
	"github.com/adalundhe/watchkit/core/processor"
)

// State is the engine lifecycle state.
type State int32

const (
	Stopped State = iota
	Running
	Restarting
)

var stateNames = map[State]string{
	Stopped:    "stopped",
	Running:    "running",
	Restarting: "restarting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Engine runs one watch loop per declared watch root, feeds normalized
// events through the processor, and restarts its loops on reload
// without dropping the process.
type Engine struct {
	repoRoot string
	registry *match.Registry
	debounce *debounce.Manager
	formats  *format.Registry
	filter   *event.TempFilter
	log      *slog.Logger

	mu   sync.Mutex
	cfg  *config.Config
	proc *processor.Processor

	state    atomic.Int32
	reload   atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	pidFile  string
}

// New builds an Engine from a validated configuration.
func New(cfg *config.Config, repoRoot string, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	formats := format.NewRegistry()
	e := &Engine{
		repoRoot: repoRoot,
		registry: match.NewRegistry(),
		debounce: debounce.NewManager(),
		formats:  formats,
		filter:   event.NewTempFilter(formats.Extensions()...),
		log:      log,
		stopCh:   make(chan struct{}),
	}
	if err := e.apply(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// apply swaps in a configuration: new rule set, new dispatcher bound to
// the new action table, new processor. The registry replace is atomic,
// so no event observes a half-populated rule set.
func (e *Engine) apply(cfg *config.Config) error {
	if err := e.registry.Replace(cfg.BuildRules()); err != nil {
		return err
	}

	d := dispatch.New(cfg.BuildActions(), e.repoRoot, cfg.Engine.MaxWorkers, e.log)
	proc := processor.New(e.registry, e.debounce, e.formats,
		processor.WithDispatcher(d),
		processor.WithMaxFileBytes(cfg.MaxFileBytes()),
		processor.WithLogger(e.log),
	)

	e.mu.Lock()
	e.cfg = cfg
	e.proc = proc
	e.mu.Unlock()
	return nil
}

// Reload hot-swaps the configuration and signals the run loop to
// restart its watch loops. The process and its PID survive.
func (e *Engine) Reload(cfg *config.Config) error {
	if err := e.apply(cfg); err != nil {
		return err
	}
	e.log.Info("configuration reloaded", "rules", e.registry.Len())
	e.reload.Store(true)
	e.interrupt()
	return nil
}

// Stop requests a clean shutdown: the reload flag is cleared so the run
// loop exits instead of restarting.
func (e *Engine) Stop() {
	e.reload.Store(false)
	e.interrupt()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Run blocks until the context is cancelled or Stop is called, writing
// the PID marker on start and removing it on clean shutdown. A pending
// reload tears the loops down, swaps state and starts them again.
func (e *Engine) Run(ctx context.Context, pidFile string) error {
	if pidFile != "" {
		if err := writePidFile(pidFile); err != nil {
			return err
		}
		e.pidFile = pidFile
		defer e.removePidFile()
	}
	defer e.debounce.ClearAll()
	defer e.state.Store(int32(Stopped))

	for {
		e.reload.Store(false)
		e.state.Store(int32(Running))
		e.log.Info("starting watch loops", "watches", len(e.snapshot().Watches))

		e.runLoops(ctx)

		if ctx.Err() == nil && e.reload.Load() {
			e.state.Store(int32(Restarting))
			e.log.Info("restarting watch loops after reload")
			continue
		}
		return ctx.Err()
	}
}

// runLoops starts one watch loop per declared watch and waits for all
// of them to exit. A fresh stop channel backs every generation of
// loops.
func (e *Engine) runLoops(ctx context.Context) {
	e.mu.Lock()
	e.stopCh = make(chan struct{})
	e.stopOnce = sync.Once{}
	stop := e.stopCh
	watches := e.cfg.Watches
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range watches {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.watchLoop(ctx, stop, w)
		}()
	}
	wg.Wait()
}

// interrupt closes the current generation's stop channel exactly once.
func (e *Engine) interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	stop := e.stopCh
	e.stopOnce.Do(func() { close(stop) })
}

// snapshot returns the current configuration.
func (e *Engine) snapshot() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// processor returns the current processor.
func (e *Engine) processor() *processor.Processor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proc
}

// ProcessOnce pushes a synthetic change for one file through the same
// matching, debouncing and dispatch pipeline the watch loops feed. One
// cycle, no filesystem subscription needed.
func (e *Engine) ProcessOnce(absPath string, change event.ChangeKind) error {
	rel, err := filepath.Rel(e.repoRoot, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %s is outside the repo root", absPath)
	}

	watch := ""
	for _, w := range e.snapshot().Watches {
		for _, p := range w.Paths {
			base := filepath.Join(e.repoRoot, p)
			if absPath == base || strings.HasPrefix(absPath, base+string(filepath.Separator)) {
				watch = w.Name
			}
		}
	}

	e.processor().ProcessEvent(event.FileEvent{
		Change:    change,
		AbsPath:   absPath,
		RelPath:   filepath.ToSlash(rel),
		WatchName: watch,
		Time:      time.Now(),
	})
	return nil
}

// writePidFile records the running PID for an external controller to
// target reload signals at.
func writePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid file directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func (e *Engine) removePidFile() {
	if err := os.Remove(e.pidFile); err != nil && !os.IsNotExist(err) {
		e.log.Warn("failed to remove pid file", "path", e.pidFile, "error", err)
	}
}
