package match

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/watchkit/core/errs"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/format"
)

func noopHandler(records []format.Record, path string) error { return nil }

func testRule(name string, patterns ...string) *RuleSpec {
	return &RuleSpec{
		Name:     name,
		Patterns: patterns,
		Debounce: 100 * time.Millisecond,
		Handler:  noopHandler,
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(testRule("jsonl", "*.jsonl")))

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []string{"jsonl"}, reg.Names())

	got, ok := reg.Get("jsonl")
	require.True(t, ok)
	assert.Equal(t, "jsonl", got.Name)
}

func TestRegistry_Register_DuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("dup", "*.jsonl")))

	err := reg.Register(testRule("dup", "*.yaml"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfig), "duplicate name is a configuration error")
	assert.Equal(t, 1, reg.Len(), "failed registration must not mutate the registry")
}

func TestRegistry_Register_InvalidRule(t *testing.T) {
	reg := NewRegistry()

	cases := map[string]*RuleSpec{
		"empty name":        {Name: "", Patterns: []string{"*.jsonl"}},
		"no patterns":       {Name: "r", Patterns: nil},
		"empty pattern":     {Name: "r", Patterns: []string{"  "}},
		"negative debounce": {Name: "r", Patterns: []string{"*.jsonl"}, Debounce: -time.Second},
	}
	for name, rule := range cases {
		err := reg.Register(rule)
		assert.True(t, errors.Is(err, errs.ErrConfig), "%s should be a configuration error", name)
	}
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_MatchesForPath_RegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("r1", "*.jsonl")))
	require.NoError(t, reg.Register(testRule("r2", "data/*.jsonl")))
	require.NoError(t, reg.Register(testRule("r3", "*.yaml")))

	matched := reg.MatchesForPath("data/a.jsonl")

	require.Len(t, matched, 2)
	assert.Equal(t, "r1", matched[0].Name, "results keep registration order")
	assert.Equal(t, "r2", matched[1].Name)
}

func TestRegistry_MatchesForPath_OverlapDeliversToAll(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("broad", "*.jsonl")))
	require.NoError(t, reg.Register(testRule("narrow", "data/*.jsonl")))

	assert.Len(t, reg.MatchesForPath("data/a.jsonl"), 2, "overlapping rules both fire")
	assert.Len(t, reg.MatchesForPath("a.jsonl"), 1, "top-level file only matches the filename rule")
}

func TestRegistry_ExcludeAlwaysFullPath(t *testing.T) {
	reg := NewRegistry()
	rule := testRule("r", "*.jsonl")
	rule.ExcludePatterns = []string{"data/*.jsonl"}
	require.NoError(t, reg.Register(rule))

	assert.Empty(t, reg.MatchesForPath("data/a.jsonl"), "exclude vetoes inside data/")
	assert.Len(t, reg.MatchesForPath("other/a.jsonl"), 1, "exclude is anchored at the root")

	// A bare-filename exclude still vetoes at any depth because it is
	// evaluated against the full path.
	reg2 := NewRegistry()
	rule2 := testRule("r", "**/*.jsonl")
	rule2.ExcludePatterns = []string{"*.tmp.jsonl"}
	require.NoError(t, reg2.Register(rule2))

	assert.Empty(t, reg2.MatchesForPath("deep/a.tmp.jsonl"))
	assert.Len(t, reg2.MatchesForPath("deep/a.jsonl"), 1)
}

func TestRegistry_ExcludeWinsOverMatch(t *testing.T) {
	reg := NewRegistry()
	rule := testRule("r", "**/*.jsonl")
	rule.ExcludePatterns = []string{"**/generated/**"}
	require.NoError(t, reg.Register(rule))

	assert.Empty(t, reg.MatchesForPath("out/generated/a.jsonl"))
	assert.Len(t, reg.MatchesForPath("out/src/a.jsonl"), 1)
}

func TestRegistry_MatchesForEvent_Filters(t *testing.T) {
	reg := NewRegistry()
	rule := testRule("r", "*.jsonl")
	rule.Watch = "content"
	rule.On = []event.ChangeKind{event.Added, event.Modified}
	require.NoError(t, reg.Register(rule))

	ev := event.FileEvent{RelPath: "a.jsonl", WatchName: "content", Change: event.Modified}
	assert.Len(t, reg.MatchesForEvent(ev), 1)

	ev.WatchName = "other"
	assert.Empty(t, reg.MatchesForEvent(ev), "watch filter applies")

	ev.WatchName = "content"
	ev.Change = event.Deleted
	assert.Empty(t, reg.MatchesForEvent(ev), "change kind filter applies")
}

func TestRegistry_Replace_Atomic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("old", "*.jsonl")))

	err := reg.Replace([]*RuleSpec{
		testRule("a", "*.yaml"),
		{Name: "bad", Patterns: []string{""}},
	})

	require.Error(t, err)
	assert.Equal(t, []string{"old"}, reg.Names(), "failed replace keeps the previous rule set")

	require.NoError(t, reg.Replace([]*RuleSpec{
		testRule("a", "*.yaml"),
		testRule("b", "*.toml"),
	}))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func TestRegistry_Replace_InvalidatesMatchCache(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("r1", "*.jsonl")))
	require.Len(t, reg.MatchesForPath("a.jsonl"), 1)

	require.NoError(t, reg.Replace([]*RuleSpec{testRule("r2", "*.yaml")}))

	assert.Empty(t, reg.MatchesForPath("a.jsonl"), "memoized results must not outlive the rule set")
	assert.Len(t, reg.MatchesForPath("a.yaml"), 1)
}

func TestRegistry_Recursive(t *testing.T) {
	reg := NewRegistry()
	flat := testRule("flat", "*.jsonl")
	require.NoError(t, reg.Register(flat))
	assert.False(t, reg.Recursive())

	deep := testRule("deep", "**/*.jsonl")
	deep.Recursive = true
	require.NoError(t, reg.Register(deep))
	assert.True(t, reg.Recursive(), "any recursive rule makes the watch recursive")
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(testRule("r", "*.jsonl")))

	reg.Clear()

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.MatchesForPath("a.jsonl"))
	require.NoError(t, reg.Register(testRule("r", "*.jsonl")), "names are reusable after Clear")
}
