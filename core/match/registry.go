package match

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/watchkit/core/errs"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/format"
)

// matchCacheSize bounds the per-path match memo. Entries are purged
// wholesale whenever the rule set changes.
const matchCacheSize = 1024

// Handler processes the parsed records of one file. The typed signature
// makes an ill-typed handler a compile error at the registration site.
type Handler func(records []format.Record, path string) error

// RuleSpec is an immutable registration record binding match patterns to
// either an in-process Handler or a list of named external actions.
// Register compiles the patterns; after that the spec is never mutated.
type RuleSpec struct {
	// Name is the registry key. Duplicates are a configuration error.
	Name string

	// Patterns are the positive match globs. At least one is required.
	Patterns []string

	// ExcludePatterns veto a match. Always evaluated against the full
	// relative path, whatever their shape.
	ExcludePatterns []string

	// Debounce is the per-rule quiet window. Must not be negative.
	Debounce time.Duration

	// ContinueOnError makes handler/action failures non-fatal for the
	// rest of the firing.
	ContinueOnError bool

	// Recursive tells the owning watch to subscribe to subdirectories.
	Recursive bool

	// Codec overrides extension-based codec resolution when non-nil.
	Codec format.Codec

	// Schema validates parsed records when non-nil.
	Schema format.Schema

	// Handler is the in-process callback (library variant).
	Handler Handler

	// Actions are named external actions to run in order (engine
	// variant).
	Actions []string

	// Watch restricts the rule to events from one named watch. Empty
	// matches any watch.
	Watch string

	// On restricts the rule to certain change kinds. Empty matches all.
	On []event.ChangeKind

	compiled []*PathPattern
	excludes []*PathPattern
}

// compile validates the spec and compiles its patterns.
func (r *RuleSpec) compile() error {
	if strings.TrimSpace(r.Name) == "" {
		return errs.Configf("rule name must be a non-empty string")
	}
	if len(r.Patterns) == 0 {
		return errs.Configf("rule %q has no match patterns", r.Name)
	}
	if r.Debounce < 0 {
		return errs.Configf("rule %q has negative debounce", r.Name)
	}

	r.compiled = make([]*PathPattern, 0, len(r.Patterns))
	for _, raw := range r.Patterns {
		p, err := Compile(raw)
		if err != nil {
			return err
		}
		r.compiled = append(r.compiled, p)
	}

	r.excludes = make([]*PathPattern, 0, len(r.ExcludePatterns))
	for _, raw := range r.ExcludePatterns {
		p, err := Compile(raw)
		if err != nil {
			return err
		}
		r.excludes = append(r.excludes, p)
	}
	return nil
}

// matches evaluates one relative path: any exclude vetoes, then any
// positive pattern qualifies.
func (r *RuleSpec) matches(relPath string) bool {
	for _, ex := range r.excludes {
		if matchFullPath(relPath, ex) {
			return false
		}
	}
	for _, p := range r.compiled {
		if p.Match(relPath) {
			return true
		}
	}
	return false
}

// matchFullPath evaluates a pattern against the full relative path
// regardless of the pattern's natural scope, which is how excludes work.
func matchFullPath(relPath string, p *PathPattern) bool {
	if p.Scope() == ScopeRelPath {
		return p.Match(relPath)
	}
	return matchSegments(strings.Split(relPath, "/"), p.segments)
}

// appliesTo applies the engine-variant event filters on top of the path
// match.
func (r *RuleSpec) appliesTo(ev event.FileEvent) bool {
	if r.Watch != "" && r.Watch != ev.WatchName {
		return false
	}
	if len(r.On) > 0 {
		found := false
		for _, kind := range r.On {
			if kind == ev.Change {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return r.matches(ev.RelPath)
}

// Registry holds named rules in registration order. The rule set is
// replaced wholesale on reload; readers never observe a half-populated
// registry.
type Registry struct {
	mu    sync.RWMutex
	rules []*RuleSpec
	names map[string]struct{}
	cache *lru.Cache[string, []*RuleSpec]
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	cache, _ := lru.New[string, []*RuleSpec](matchCacheSize)
	return &Registry{
		names: make(map[string]struct{}),
		cache: cache,
	}
}

// Register validates, compiles and appends a rule. Duplicate names,
// empty patterns and negative debounce are configuration errors.
func (reg *Registry) Register(rule *RuleSpec) error {
	if err := rule.compile(); err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.names[rule.Name]; exists {
		return errs.Configf("rule %q is already registered", rule.Name)
	}
	reg.names[rule.Name] = struct{}{}
	reg.rules = append(reg.rules, rule)
	reg.cache.Purge()
	return nil
}

// Replace swaps the whole rule set atomically. On any validation error
// the previous set is kept untouched.
func (reg *Registry) Replace(rules []*RuleSpec) error {
	names := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if err := rule.compile(); err != nil {
			return err
		}
		if _, exists := names[rule.Name]; exists {
			return errs.Configf("rule %q is already registered", rule.Name)
		}
		names[rule.Name] = struct{}{}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rules = rules
	reg.names = names
	reg.cache.Purge()
	return nil
}

// MatchesForPath returns the rules matching a POSIX relative path, in
// registration order. Results are memoized until the rule set changes.
func (reg *Registry) MatchesForPath(relPath string) []*RuleSpec {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if cached, ok := reg.cache.Get(relPath); ok {
		return cached
	}

	var matched []*RuleSpec
	for _, rule := range reg.rules {
		if rule.matches(relPath) {
			matched = append(matched, rule)
		}
	}
	reg.cache.Add(relPath, matched)
	return matched
}

// MatchesForEvent narrows MatchesForPath by the event's watch name and
// change kind.
func (reg *Registry) MatchesForEvent(ev event.FileEvent) []*RuleSpec {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	var matched []*RuleSpec
	for _, rule := range reg.rules {
		if rule.appliesTo(ev) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Get returns the rule registered under name.
func (reg *Registry) Get(name string) (*RuleSpec, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, rule := range reg.rules {
		if rule.Name == name {
			return rule, true
		}
	}
	return nil, false
}

// Names returns the registered rule names in registration order.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, len(reg.rules))
	for i, rule := range reg.rules {
		names[i] = rule.Name
	}
	return names
}

// Len returns the number of registered rules.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rules)
}

// Recursive reports whether any registered rule wants recursive
// watching. The watch subscribes to the superset.
func (reg *Registry) Recursive() bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, rule := range reg.rules {
		if rule.Recursive {
			return true
		}
	}
	return false
}

// Clear removes every rule. Used on shutdown; reload uses Replace.
func (reg *Registry) Clear() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rules = nil
	reg.names = make(map[string]struct{})
	reg.cache.Purge()
}
