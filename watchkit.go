// Package watchkit watches a directory tree for file changes, debounces
// them per path, and hands parsed records to registered handlers. It is
// the in-process companion to the watchkit command: the same matching,
// debouncing and parsing pipeline, driven by Go callbacks instead of
// external actions.
package watchkit

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/adalundhe/watchkit/core/debounce"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/format"
	"github.com/adalundhe/watchkit/core/match"
	"github.com/adalundhe/watchkit/core/processor"
	"github.com/adalundhe/watchkit/core/writer"
)

// DefaultDebounce is the quiet window applied to rules that do not set
// their own.
const DefaultDebounce = 300 * time.Millisecond

// Record is the parsed content of one file section.
type Record = format.Record

// Handler processes the parsed records of one changed file.
type Handler = match.Handler

// Watcher is the library entry point. Register handlers with OnChange,
// then Start it against a root directory. Writes issued through
// WriteRecords never re-trigger the watcher.
type Watcher struct {
	registry *match.Registry
	debounce *debounce.Manager
	formats  *format.Registry
	writer   *writer.AtomicWriter
	proc     *processor.Processor
	filter   *event.TempFilter
	log      *slog.Logger

	defaultDebounce time.Duration
	exclusion       time.Duration
	maxFileBytes    int64

	mu      sync.Mutex
	root    string
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) { w.log = log }
}

// WithDefaultDebounce sets the quiet window for rules without one.
func WithDefaultDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.defaultDebounce = d }
}

// WithWriteExclusion sets how long a path written through WriteRecords
// stays deaf to its own change notifications.
func WithWriteExclusion(d time.Duration) Option {
	return func(w *Watcher) { w.exclusion = d }
}

// WithMaxFileBytes sets the size above which changed files are skipped.
func WithMaxFileBytes(n int64) Option {
	return func(w *Watcher) { w.maxFileBytes = n }
}

// New returns a Watcher with no rules registered.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		registry:        match.NewRegistry(),
		debounce:        debounce.NewManager(),
		formats:         format.NewRegistry(),
		log:             slog.Default(),
		defaultDebounce: DefaultDebounce,
		exclusion:       writer.DefaultExclusion,
		maxFileBytes:    processor.DefaultMaxFileBytes,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.writer = writer.New(w.debounce, w.exclusion, w.log)
	w.filter = event.NewTempFilter(w.formats.Extensions()...)
	w.proc = processor.New(w.registry, w.debounce, w.formats,
		processor.WithMaxFileBytes(w.maxFileBytes),
		processor.WithLogger(w.log),
	)
	return w
}

// RuleOption configures one OnChange registration.
type RuleOption func(*match.RuleSpec)

// WithDebounce overrides the rule's quiet window.
func WithDebounce(d time.Duration) RuleOption {
	return func(r *match.RuleSpec) { r.Debounce = d }
}

// WithExclude adds patterns that veto a match. They are always
// evaluated against the full path relative to the watched root.
func WithExclude(patterns ...string) RuleOption {
	return func(r *match.RuleSpec) { r.ExcludePatterns = append(r.ExcludePatterns, patterns...) }
}

// WithSchema validates parsed records before the handler runs.
func WithSchema(s format.Schema) RuleOption {
	return func(r *match.RuleSpec) { r.Schema = s }
}

// WithCodec overrides extension-based codec resolution for the rule.
func WithCodec(c format.Codec) RuleOption {
	return func(r *match.RuleSpec) { r.Codec = c }
}

// ContinueOnError keeps the firing going when the handler fails.
func ContinueOnError() RuleOption {
	return func(r *match.RuleSpec) { r.ContinueOnError = true }
}

// NonRecursive limits the rule to the root directory itself.
func NonRecursive() RuleOption {
	return func(r *match.RuleSpec) { r.Recursive = false }
}

// OnChange registers a handler for files matching pattern. A pattern
// containing a slash matches the path relative to the watched root;
// otherwise it matches the bare filename. Registration fails on an
// empty pattern, a duplicate name or a negative debounce.
func (w *Watcher) OnChange(name, pattern string, handler Handler, opts ...RuleOption) error {
	rule := &match.RuleSpec{
		Name:      name,
		Patterns:  []string{pattern},
		Debounce:  w.defaultDebounce,
		Recursive: true,
		Handler:   handler,
	}
	for _, opt := range opts {
		opt(rule)
	}
	return w.registry.Register(rule)
}

// WriteRecords serializes records with the codec implied by the path's
// extension and writes them atomically. The path is excluded from
// change detection before the first byte hits disk, so the write never
// triggers the handlers watching it.
func (w *Watcher) WriteRecords(records []Record, path string) error {
	codec := w.formats.ForPath(path)
	content, err := codec.Write(records)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", path, err)
	}
	return w.writer.Write(content, path)
}

// Start begins watching root in the background. It returns once the
// filesystem subscription is established.
func (w *Watcher) Start(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := addTree(fw, abs, w.registry.Recursive()); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", abs, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.root = abs
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx, fw)
	w.log.Debug("watcher started", "root", abs, "rules", w.registry.Len())
	return nil
}

// Stop tears the watch loop down and cancels all pending debounce
// timers. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.running = false
	w.mu.Unlock()

	cancel()
	<-done
	w.debounce.ClearAll()
	w.debounce.Reset()
	w.log.Debug("watcher stopped", "root", w.root)
}

// IsRunning reports whether the watch loop is live.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	defer fw.Close()

	recursive := w.registry.Recursive()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleRaw(fw, raw, recursive)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleRaw(fw *fsnotify.Watcher, raw fsnotify.Event, recursive bool) {
	info, statErr := os.Stat(raw.Name)
	if statErr == nil && info.IsDir() {
		if raw.Op.Has(fsnotify.Create) && recursive {
			if err := addTree(fw, raw.Name, true); err != nil {
				w.log.Warn("failed to watch new directory", "path", raw.Name, "error", err)
			}
		}
		return
	}
	if w.filter.Drop(raw.Name) {
		return
	}
	ev, ok := event.Normalize(raw, w.root, "", false)
	if !ok {
		return
	}
	w.proc.ProcessEvent(ev)
}

func addTree(fw *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && d.Name() != "." && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
