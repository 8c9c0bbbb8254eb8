package config

import (
	"time"

	"github.com/adalundhe/watchkit/core/dispatch"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/match"
)

var changeKindsByName = map[string]event.ChangeKind{
	"added":    event.Added,
	"modified": event.Modified,
	"deleted":  event.Deleted,
}

// BuildRules converts the rule section into registrable rule specs. The
// config must already have passed Validate.
func (c *Config) BuildRules() []*match.RuleSpec {
	rules := make([]*match.RuleSpec, 0, len(c.Rules))
	for _, r := range c.Rules {
		on := make([]event.ChangeKind, 0, len(r.On))
		for _, name := range r.On {
			if kind, ok := changeKindsByName[name]; ok {
				on = append(on, kind)
			}
		}

		recursive := true
		for _, w := range c.Watches {
			if w.Name == r.Watch {
				recursive = w.IsRecursive()
			}
		}

		rules = append(rules, &match.RuleSpec{
			Name:            r.Name,
			Patterns:        append([]string{}, r.Match...),
			ExcludePatterns: append([]string{}, r.Exclude...),
			Debounce:        c.Debounce(r),
			ContinueOnError: r.ContinueOnError,
			Recursive:       recursive,
			Actions:         append([]string{}, r.Do...),
			Watch:           r.Watch,
			On:              on,
		})
	}
	return rules
}

// BuildActions converts the action section into the dispatcher's action
// table.
func (c *Config) BuildActions() []dispatch.ActionConfig {
	actions := make([]dispatch.ActionConfig, 0, len(c.Actions))
	for _, a := range c.Actions {
		actions = append(actions, dispatch.ActionConfig{
			Name:    a.Name,
			Cmd:     append([]string{}, a.Cmd...),
			Cwd:     a.Cwd,
			Env:     a.Env,
			Timeout: time.Duration(a.TimeoutS) * time.Second,
		})
	}
	return actions
}
