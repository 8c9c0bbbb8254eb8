package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/adalundhe/watchkit/core/config"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/match"
)

// watchLoop subscribes one fsnotify watcher to a watch block's roots
// and pumps raw events into the processor until stopped. Directories
// created under a recursive root are added to the subscription as they
// appear.
func (e *Engine) watchLoop(ctx context.Context, stop <-chan struct{}, w config.WatchConfig) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		e.log.Error("failed to create filesystem watcher", "watch", w.Name, "error", err)
		return
	}
	defer fw.Close()

	ignores := e.compileIgnores(w)

	for _, p := range w.Paths {
		root := filepath.Join(e.repoRoot, p)
		if err := e.addTree(fw, root, w.IsRecursive()); err != nil {
			e.log.Error("failed to watch path", "watch", w.Name, "path", root, "error", err)
		}
	}
	e.log.Debug("watch loop started", "watch", w.Name, "paths", w.Paths, "recursive", w.IsRecursive())

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case raw, ok := <-fw.Events:
			if !ok {
				return
			}
			e.handleRaw(fw, w, ignores, raw)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			e.log.Warn("watcher error", "watch", w.Name, "error", err)
		}
	}
}

// handleRaw filters one raw notification and, when it survives, feeds
// the normalized event into the processing pipeline.
func (e *Engine) handleRaw(fw *fsnotify.Watcher, w config.WatchConfig, ignores []*match.PathPattern, raw fsnotify.Event) {
	if e.inIgnoredDir(raw.Name) {
		return
	}

	info, statErr := os.Stat(raw.Name)
	isDir := statErr == nil && info.IsDir()

	// New directories under a recursive root join the subscription.
	// Directory events themselves never reach the rules.
	if isDir {
		if raw.Op.Has(fsnotify.Create) && w.IsRecursive() {
			if err := e.addTree(fw, raw.Name, true); err != nil {
				e.log.Warn("failed to watch new directory", "path", raw.Name, "error", err)
			}
		}
		return
	}

	if e.filter.Drop(raw.Name) {
		return
	}

	ev, ok := event.Normalize(raw, e.repoRoot, w.Name, isDir)
	if !ok {
		return
	}
	for _, ig := range ignores {
		if ig.Match(ev.RelPath) {
			return
		}
	}

	e.processor().ProcessEvent(ev)
}

// addTree registers a directory with the watcher, walking into
// subdirectories when recursive. Ignored directory names are pruned
// from the walk.
func (e *Engine) addTree(fw *fsnotify.Watcher, root string, recursive bool) error {
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
		if path != root && e.ignoredDirName(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// compileIgnores merges the engine-wide and per-watch ignore globs.
// Both sets were validated at load time, so compile failures here are
// only logged.
func (e *Engine) compileIgnores(w config.WatchConfig) []*match.PathPattern {
	cfg := e.snapshot()
	raw := make([]string, 0, len(cfg.Engine.IgnoreGlobs)+len(w.IgnoreGlobs))
	raw = append(raw, cfg.Engine.IgnoreGlobs...)
	raw = append(raw, w.IgnoreGlobs...)

	patterns := make([]*match.PathPattern, 0, len(raw))
	for _, g := range raw {
		p, err := match.Compile(g)
		if err != nil {
			e.log.Warn("skipping unparsable ignore glob", "glob", g, "error", err)
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns
}

// inIgnoredDir reports whether any path segment names an ignored
// directory.
func (e *Engine) inIgnoredDir(path string) bool {
	rel, err := filepath.Rel(e.repoRoot, path)
	if err != nil {
		rel = path
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if e.ignoredDirName(part) {
			return true
		}
	}
	return false
}

func (e *Engine) ignoredDirName(name string) bool {
	for _, d := range e.snapshot().Engine.IgnoreDirs {
		if name == d {
			return true
		}
	}
	return false
}
