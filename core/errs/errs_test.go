package errs

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError_Sentinel(t *testing.T) {
	err := Configf("rule %q has no match patterns", "r1")

	assert.True(t, errors.Is(err, ErrConfig))
	assert.Contains(t, err.Error(), "r1")
}

func TestConfigError_AggregatesProblems(t *testing.T) {
	err := &ConfigError{Problems: []string{"first", "second", "third"}}

	assert.Contains(t, err.Error(), "3 problems")
	assert.Contains(t, err.Error(), "second")
}

func TestFormatError_PathAttachedLater(t *testing.T) {
	err := Formatf("invalid JSON document: %v", "unexpected end")
	assert.True(t, errors.Is(err, ErrFormat))

	err.Path = "/repo/a.json"
	assert.Contains(t, err.Error(), "/repo/a.json")
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{
		Path:   "/repo/a.jsonl",
		Record: 2,
		Fields: []FieldError{
			{Field: "title", Reason: "required"},
			{Field: "count", Reason: "must be positive"},
		},
	}

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "record 2")
	assert.Contains(t, err.Error(), "title: required")
	assert.Contains(t, err.Error(), "count: must be positive")

	var vErr *ValidationError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &vErr))
	assert.Equal(t, 2, vErr.Record)
}

func TestActionError_UnwrapsBothSentinelAndCause(t *testing.T) {
	cause := &exec.Error{Name: "missing-binary", Err: exec.ErrNotFound}
	err := &ActionError{Action: "build", Err: cause}

	assert.True(t, errors.Is(err, ErrAction))
	assert.True(t, errors.Is(err, exec.ErrNotFound), "the launch cause stays reachable")
	assert.Contains(t, err.Error(), `action "build"`)
}
