// Package writer implements the crash-safe output path used by handlers
// writing derived data and by hot-config-reload.
package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adalundhe/watchkit/core/debounce"
)

// AtomicWriter writes files via a same-directory temp file plus rename,
// registering a write-exclusion with the debounce manager before the
// filesystem is touched so the resulting OS events never re-trigger
// processing.
type AtomicWriter struct {
	debounce  *debounce.Manager
	exclusion time.Duration
	log       *slog.Logger
}

// DefaultExclusion is the write-exclusion window applied when the caller
// configures none.
const DefaultExclusion = time.Second

// New builds an AtomicWriter. A zero exclusion falls back to
// DefaultExclusion; a nil logger falls back to slog.Default.
func New(dm *debounce.Manager, exclusion time.Duration, log *slog.Logger) *AtomicWriter {
	if exclusion <= 0 {
		exclusion = DefaultExclusion
	}
	if log == nil {
		log = slog.Default()
	}
	return &AtomicWriter{debounce: dm, exclusion: exclusion, log: log}
}

// Write lands content at targetPath atomically. Parent directories are
// created as needed. On any failure after temp-file creation the temp
// file is removed and the target is left untouched.
//
// The exclusion is registered before the first syscall that can produce
// a filesystem event; otherwise the OS notification for our own write
// could arrive before the exclusion is active. The exclusion key is the
// absolute path, matching how fsnotify reports events.
func (w *AtomicWriter) Write(content []byte, targetPath string) error {
	if abs, err := filepath.Abs(targetPath); err == nil {
		targetPath = abs
	}
	if w.debounce != nil {
		w.debounce.ExcludeTemporarily(targetPath, w.exclusion)
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", targetPath, err)
	}

	// Dot-prefixed .tmp-suffixed name: caught by both the temp-filename
	// filter and the hidden-file rule, whatever patterns are registered.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(targetPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, content); err != nil {
		tmp.Close()
		w.discard(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", targetPath, err)
	}
	if err := tmp.Close(); err != nil {
		w.discard(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", targetPath, err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		w.discard(tmpPath)
		return fmt.Errorf("rename temp file onto %s: %w", targetPath, err)
	}

	w.log.Debug("atomic write complete", "path", targetPath, "bytes", len(content))
	return nil
}

// writeAndSync writes content and forces it to stable storage before the
// rename makes it visible.
func writeAndSync(f *os.File, content []byte) error {
	if _, err := f.Write(content); err != nil {
		return err
	}
	return f.Sync()
}

// discard removes a failed temp file. Best effort: the name can never
// match a registered pattern, so a leak is cosmetic.
func (w *AtomicWriter) discard(tmpPath string) {
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		w.log.Warn("failed to remove temp file", "path", tmpPath, "error", err)
	}
}
