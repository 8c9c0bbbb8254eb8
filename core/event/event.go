// Package event defines the normalized file change event consumed by the
// matching and dispatch layers, plus the filename filters applied before
// an event ever reaches a rule.
package event

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind classifies a normalized filesystem change.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Deleted
)

var changeNames = map[ChangeKind]string{
	Added:    "added",
	Modified: "modified",
	Deleted:  "deleted",
}

func (c ChangeKind) String() string {
	if name, ok := changeNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON emits the lowercase change name, matching the action
// environment contract.
func (c ChangeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// FileEvent is a single normalized filesystem change. Immutable: produced
// once per OS notification and passed by value through the pipeline.
type FileEvent struct {
	Change    ChangeKind `json:"change"`
	AbsPath   string     `json:"path_abs"`
	RelPath   string     `json:"path_rel"` // POSIX form, relative to the repo root
	IsDir     bool       `json:"is_dir"`
	WatchName string     `json:"watch_name"`
	Time      time.Time  `json:"-"`
}

// Normalize converts a raw fsnotify event into a FileEvent. Returns false
// when the event should be dropped: unknown operation, or a path outside
// the repo root.
func Normalize(raw fsnotify.Event, repoRoot, watchName string, isDir bool) (FileEvent, bool) {
	change, ok := mapOperation(raw.Op)
	if !ok {
		return FileEvent{}, false
	}

	rel, err := filepath.Rel(repoRoot, raw.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return FileEvent{}, false
	}

	return FileEvent{
		Change:    change,
		AbsPath:   raw.Name,
		RelPath:   filepath.ToSlash(rel),
		IsDir:     isDir,
		WatchName: watchName,
		Time:      time.Now(),
	}, true
}

// mapOperation converts fsnotify operations. Rename is reported as a
// deletion of the old name; the new name arrives as its own Create.
func mapOperation(op fsnotify.Op) (ChangeKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Added, true
	case op.Has(fsnotify.Write):
		return Modified, true
	case op.Has(fsnotify.Remove):
		return Deleted, true
	case op.Has(fsnotify.Rename):
		return Deleted, true
	case op.Has(fsnotify.Chmod):
		return Modified, true
	}
	return 0, false
}

// BatchJSON serializes a batch of events for the action environment
// (EVENTS_JSON). The array order preserves arrival order.
func BatchJSON(events []FileEvent) (string, error) {
	out, err := json.Marshal(events)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
