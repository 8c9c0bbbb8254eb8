package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/adalundhe/watchkit/core/errs"
	"github.com/adalundhe/watchkit/core/match"
)

var validChangeKinds = map[string]bool{
	"added":    true,
	"modified": true,
	"deleted":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the whole configuration and aggregates every problem
// found. Returns nil or a *errs.ConfigError.
func (c *Config) Validate() error {
	var problems []string

	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Engine.DebounceMs < 0 {
		add("engine.debounce_ms must not be negative")
	}
	if c.Engine.MaxWorkers < 1 {
		add("engine.max_workers must be at least 1")
	}
	if c.Engine.MaxFileSizeMb < 1 {
		add("engine.max_file_size_mb must be at least 1")
	}
	if !validLogLevels[strings.ToLower(c.Engine.LogLevel)] {
		add("engine.log_level %q is not one of debug, info, warn, error", c.Engine.LogLevel)
	}
	for _, g := range c.Engine.IgnoreGlobs {
		if _, err := match.Compile(g); err != nil {
			add("engine.ignore_globs entry %q: %v", g, err)
		}
	}

	watchNames := make(map[string]bool, len(c.Watches))
	for _, w := range c.Watches {
		if strings.TrimSpace(w.Name) == "" {
			add("watch with empty name")
			continue
		}
		if watchNames[w.Name] {
			add("duplicate watch name %q", w.Name)
		}
		watchNames[w.Name] = true

		if len(w.Paths) == 0 {
			add("watch %q has no paths", w.Name)
		}
		for _, p := range w.Paths {
			if escapesRoot(p) {
				add("watch %q path escapes repo root: %q", w.Name, p)
			}
		}
		if w.DebounceMs != nil && *w.DebounceMs < 0 {
			add("watch %q debounce_ms must not be negative", w.Name)
		}
	}

	actionNames := make(map[string]bool, len(c.Actions))
	for _, a := range c.Actions {
		if strings.TrimSpace(a.Name) == "" {
			add("action with empty name")
			continue
		}
		if actionNames[a.Name] {
			add("duplicate action name %q", a.Name)
		}
		actionNames[a.Name] = true

		if len(a.Cmd) == 0 {
			add("action %q has an empty cmd", a.Name)
		}
		if a.Cwd != "" && escapesRoot(a.Cwd) {
			add("action %q cwd escapes repo root: %q", a.Name, a.Cwd)
		}
		if a.TimeoutS < 0 {
			add("action %q timeout_s must not be negative", a.Name)
		}
	}

	ruleNames := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if strings.TrimSpace(r.Name) == "" {
			add("rule with empty name")
			continue
		}
		if ruleNames[r.Name] {
			add("duplicate rule name %q", r.Name)
		}
		ruleNames[r.Name] = true

		if !watchNames[r.Watch] {
			add("rule %q references unknown watch %q", r.Name, r.Watch)
		}
		for _, name := range r.Do {
			if !actionNames[name] {
				add("rule %q references unknown action %q", r.Name, name)
			}
		}
		if len(r.Do) == 0 {
			add("rule %q has no actions", r.Name)
		}
		if len(r.Match) == 0 {
			add("rule %q has no match patterns", r.Name)
		}
		for _, pattern := range append(append([]string{}, r.Match...), r.Exclude...) {
			if _, err := match.Compile(pattern); err != nil {
				add("rule %q pattern %q: %v", r.Name, pattern, err)
			}
		}
		for _, kind := range r.On {
			if !validChangeKinds[kind] {
				add("rule %q has unknown event type %q", r.Name, kind)
			}
		}
		if len(r.On) == 0 {
			add("rule %q has no event types", r.Name)
		}
		if r.DebounceMs != nil && *r.DebounceMs < 0 {
			add("rule %q debounce_ms must not be negative", r.Name)
		}
	}

	if len(problems) > 0 {
		return &errs.ConfigError{Problems: problems}
	}
	return nil
}

// escapesRoot reports whether a relative path can climb out of the repo
// root. Checked at validation time so dispatch never has to.
func escapesRoot(p string) bool {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned)
}
