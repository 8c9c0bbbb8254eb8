// Package config loads and validates the watchkit.yaml configuration.
//
// Loading never yields a partially valid configuration: every problem
// found is collected and returned together as a single ConfigError, and
// the caller either gets a fully validated Config or none at all.
package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultFileName is the config file searched for when none is given.
const DefaultFileName = "watchkit.yaml"

// DefaultPidFileName is the PID marker written next to the repo root.
const DefaultPidFileName = ".watchkit.pid"

// Config is the root object for the whole configuration file.
type Config struct {
	Version int            `yaml:"version"`
	Engine  EngineConfig   `yaml:"engine"`
	Watches []WatchConfig  `yaml:"watches"`
	Actions []ActionConfig `yaml:"actions"`
	Rules   []RuleConfig   `yaml:"rules"`
}

// EngineConfig is the top-level engine section.
type EngineConfig struct {
	RepoRoot      string   `yaml:"repo_root"`
	DebounceMs    int      `yaml:"debounce_ms"`
	MaxWorkers    int      `yaml:"max_workers"`
	IgnoreDirs    []string `yaml:"ignore_dirs"`
	IgnoreGlobs   []string `yaml:"ignore_globs"`
	LogLevel      string   `yaml:"log_level"`
	MaxFileSizeMb int      `yaml:"max_file_size_mb"`
	PidFile       string   `yaml:"pid_file"`
}

// WatchConfig declares one watched root.
type WatchConfig struct {
	Name        string   `yaml:"name"`
	Paths       []string `yaml:"paths"`
	Recursive   *bool    `yaml:"recursive"`
	DebounceMs  *int     `yaml:"debounce_ms"`
	IgnoreGlobs []string `yaml:"ignore_globs"`
}

// IsRecursive applies the recursive default (true).
func (w WatchConfig) IsRecursive() bool {
	return w.Recursive == nil || *w.Recursive
}

// ActionConfig declares one external command action.
type ActionConfig struct {
	Name     string            `yaml:"name"`
	Cmd      []string          `yaml:"cmd"`
	Cwd      string            `yaml:"cwd"`
	Env      map[string]string `yaml:"env"`
	TimeoutS int               `yaml:"timeout_s"`
}

// RuleConfig binds match patterns to actions for one watch.
type RuleConfig struct {
	Name            string   `yaml:"name"`
	Watch           string   `yaml:"watch"`
	On              []string `yaml:"on"`
	Match           []string `yaml:"match"`
	Exclude         []string `yaml:"exclude"`
	Do              []string `yaml:"do"`
	DebounceMs      *int     `yaml:"debounce_ms"`
	ContinueOnError bool     `yaml:"continue_on_error"`
}

// Default returns the configuration used when a section or field is
// absent.
func Default() *Config {
	return &Config{
		Version: 1,
		Engine: EngineConfig{
			RepoRoot:      ".",
			DebounceMs:    300,
			MaxWorkers:    1,
			IgnoreDirs:    []string{".git", "node_modules", "vendor"},
			LogLevel:      "info",
			MaxFileSizeMb: 100,
		},
	}
}

// applyDefaults fills absent engine fields in a decoded config.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.Engine.RepoRoot == "" {
		c.Engine.RepoRoot = def.Engine.RepoRoot
	}
	if c.Engine.DebounceMs == 0 {
		c.Engine.DebounceMs = def.Engine.DebounceMs
	}
	if c.Engine.MaxWorkers == 0 {
		c.Engine.MaxWorkers = def.Engine.MaxWorkers
	}
	if c.Engine.IgnoreDirs == nil {
		c.Engine.IgnoreDirs = def.Engine.IgnoreDirs
	}
	if c.Engine.LogLevel == "" {
		c.Engine.LogLevel = def.Engine.LogLevel
	}
	if c.Engine.MaxFileSizeMb == 0 {
		c.Engine.MaxFileSizeMb = def.Engine.MaxFileSizeMb
	}
}

// Debounce returns the effective debounce for a rule: rule override,
// else watch override, else the engine default.
func (c *Config) Debounce(rule RuleConfig) time.Duration {
	if rule.DebounceMs != nil {
		return time.Duration(*rule.DebounceMs) * time.Millisecond
	}
	for _, w := range c.Watches {
		if w.Name == rule.Watch && w.DebounceMs != nil {
			return time.Duration(*w.DebounceMs) * time.Millisecond
		}
	}
	return time.Duration(c.Engine.DebounceMs) * time.Millisecond
}

// MaxFileBytes returns the file size ceiling in bytes.
func (c *Config) MaxFileBytes() int64 {
	return int64(c.Engine.MaxFileSizeMb) * 1024 * 1024
}

// Summary renders the one-screen overview printed by `watchkit check`.
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Version: %d\n", c.Version)
	fmt.Fprintf(&b, "  Watches: %d\n", len(c.Watches))
	fmt.Fprintf(&b, "  Actions: %d\n", len(c.Actions))
	fmt.Fprintf(&b, "  Rules:   %d\n", len(c.Rules))
	for _, w := range c.Watches {
		fmt.Fprintf(&b, "  Watch %q: paths=%v\n", w.Name, w.Paths)
	}
	for _, a := range c.Actions {
		fmt.Fprintf(&b, "  Action %q: cmd=%v\n", a.Name, a.Cmd)
	}
	for _, r := range c.Rules {
		fmt.Fprintf(&b, "  Rule %q: watch=%s -> %v\n", r.Name, r.Watch, r.Do)
	}
	return b.String()
}
