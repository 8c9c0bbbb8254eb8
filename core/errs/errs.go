// Package errs defines the watchkit error taxonomy.
//
// The taxonomy separates configuration problems (fatal at load time) from
// per-file problems (isolated, logged, processing of that file aborted)
// and from action/handler failures (subject to the continue-on-error
// policy of the rule that triggered them).
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig is the sentinel wrapped by all configuration errors.
	ErrConfig = errors.New("configuration error")

	// ErrFormat is the sentinel wrapped by all file format errors.
	ErrFormat = errors.New("format error")

	// ErrValidation is the sentinel wrapped by all schema validation errors.
	ErrValidation = errors.New("validation error")

	// ErrAction is the sentinel wrapped by action launch failures.
	ErrAction = errors.New("action error")
)

// ConfigError aggregates one or more configuration problems found while
// loading or validating a config. It is fatal: the process must not start
// watching with a partially valid configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "config: " + e.Problems[0]
	}
	return fmt.Sprintf("config: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// Configf builds a single-problem ConfigError.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// FormatError reports malformed content for a file's codec. It is isolated
// per file: other files are unaffected.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return "format: " + e.Err.Error()
	}
	return fmt.Sprintf("format: %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// Formatf builds a FormatError with no path attached. The processor fills
// in the path when it surfaces the error.
func Formatf(format string, args ...any) *FormatError {
	return &FormatError{Err: fmt.Errorf(format, args...)}
}

// FieldError is one schema violation inside a record.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string { return e.Field + ": " + e.Reason }

// ValidationError reports content that parsed cleanly but failed its
// schema. Distinct from FormatError so operators can tell "broken file"
// from "unexpected shape".
type ValidationError struct {
	Path   string
	Record int // zero-based index of the offending record
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("validation: %s record %d: %s", e.Path, e.Record, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ActionError reports that an external action process could not even be
// launched (binary not found, exec failure). Raised to the dispatch
// caller, never silently swallowed.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return errors.Join(ErrAction, e.Err) }
