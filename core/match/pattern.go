// Package match implements glob-style rule matching for file paths.
//
// A pattern has one of two scopes, decided by its shape: patterns with a
// path separator match the full POSIX relative path, patterns without one
// match the bare filename wherever it sits in the tree. `**` matches zero
// or more whole path segments; every other segment is a shell-style glob
// that consumes exactly one path segment.
package match

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/adalundhe/watchkit/core/errs"
)

// Scope describes which part of a path a pattern is evaluated against.
type Scope int

const (
	// ScopeFilename matches the bare filename only.
	ScopeFilename Scope = iota
	// ScopeRelPath matches the full POSIX relative path.
	ScopeRelPath
)

// segment is one compiled pattern segment. A nil matcher marks `**`.
type segment struct {
	matcher glob.Glob
}

func (s segment) isDoubleStar() bool { return s.matcher == nil }

// PathPattern is a compiled glob pattern.
type PathPattern struct {
	raw      string
	scope    Scope
	segments []segment
}

// Compile parses a pattern string. Empty or whitespace-only patterns and
// malformed globs are configuration errors.
func Compile(pattern string) (*PathPattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, errs.Configf("pattern must be a non-empty string")
	}

	scope := ScopeFilename
	if strings.Contains(pattern, "/") {
		scope = ScopeRelPath
	}

	parts := strings.Split(pattern, "/")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "**" {
			segments = append(segments, segment{})
			continue
		}
		g, err := glob.Compile(part)
		if err != nil {
			return nil, errs.Configf("invalid pattern %q: %v", pattern, err)
		}
		segments = append(segments, segment{matcher: g})
	}

	return &PathPattern{raw: pattern, scope: scope, segments: segments}, nil
}

// String returns the original pattern text.
func (p *PathPattern) String() string { return p.raw }

// Scope returns the match scope implied by the pattern's shape.
func (p *PathPattern) Scope() Scope { return p.scope }

// Match evaluates the pattern against a POSIX relative path.
func (p *PathPattern) Match(relPath string) bool {
	target := relPath
	if p.scope == ScopeFilename {
		if idx := strings.LastIndexByte(relPath, '/'); idx >= 0 {
			target = relPath[idx+1:]
		}
	}
	return matchSegments(strings.Split(target, "/"), p.segments)
}

// matchSegments recursively matches path segments against pattern
// segments. For `**`, the remaining pattern is tried against every suffix
// of the remaining path, including the empty suffix; a trailing `**`
// matches everything left.
func matchSegments(path []string, pattern []segment) bool {
	for len(pattern) > 0 {
		seg := pattern[0]
		if seg.isDoubleStar() {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for start := 0; start <= len(path); start++ {
				if matchSegments(path[start:], rest) {
					return true
				}
			}
			return false
		}
		if len(path) == 0 {
			return false
		}
		if !seg.matcher.Match(path[0]) {
			return false
		}
		path = path[1:]
		pattern = pattern[1:]
	}
	return len(path) == 0
}
