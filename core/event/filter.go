package event

import (
	"path/filepath"
	"strings"
)

// tempSuffixes are filename endings produced by editors and atomic-write
// implementations. Events for them never reach the rule registry.
var tempSuffixes = []string{"~", ".tmp", ".temp", ".partial", ".swp", ".swx"}

// tempPrefixes are common atomic-editor scratch file prefixes.
var tempPrefixes = []string{".tmp", "tmp", ".goutputstream"}

// TempFilter drops hidden and temporary filenames before matching. A
// hidden (dot-prefixed) file is still allowed through when its extension
// is one a codec recognizes, so dotfiles like .config.json stay
// processable.
type TempFilter struct {
	recognized map[string]bool
}

// NewTempFilter builds a filter that exempts the given extensions
// (lowercase, with leading dot) from the hidden-file rule.
func NewTempFilter(recognizedExts ...string) *TempFilter {
	recognized := make(map[string]bool, len(recognizedExts))
	for _, ext := range recognizedExts {
		recognized[strings.ToLower(ext)] = true
	}
	return &TempFilter{recognized: recognized}
}

// Drop reports whether the path should be discarded as hidden or
// temporary.
func (f *TempFilter) Drop(path string) bool {
	name := filepath.Base(path)

	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	for _, prefix := range tempPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	if strings.HasPrefix(name, ".") {
		ext := strings.ToLower(filepath.Ext(name))
		return !f.recognized[ext]
	}
	return false
}
