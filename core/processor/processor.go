// Package processor turns debounced file events into handler and action
// invocations.
package processor

import (
	"errors"
	"log/slog"
	"os"

	"github.com/adalundhe/watchkit/core/debounce"
	"github.com/adalundhe/watchkit/core/errs"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/format"
	"github.com/adalundhe/watchkit/core/match"
)

// DefaultMaxFileBytes is the size ceiling applied when none is
// configured (100 MiB).
const DefaultMaxFileBytes = 100 * 1024 * 1024

// Dispatcher runs a matched rule's external actions. Implemented by the
// dispatch package; declared here so the processor stays decoupled from
// process execution.
type Dispatcher interface {
	DispatchRule(rule *match.RuleSpec, events []event.FileEvent) error
}

// Processor consumes raw file events, coalesces them through the
// debounce manager, and on fire executes every still-matching rule.
type Processor struct {
	registry   *match.Registry
	debounce   *debounce.Manager
	formats    *format.Registry
	dispatcher Dispatcher
	maxBytes   int64
	log        *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithDispatcher attaches an action dispatcher for rules that name
// external actions.
func WithDispatcher(d Dispatcher) Option {
	return func(p *Processor) { p.dispatcher = d }
}

// WithMaxFileBytes overrides the file size ceiling.
func WithMaxFileBytes(n int64) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// New builds a Processor bound to a rule registry, debounce manager and
// codec registry.
func New(registry *match.Registry, dm *debounce.Manager, formats *format.Registry, opts ...Option) *Processor {
	p := &Processor{
		registry: registry,
		debounce: dm,
		formats:  formats,
		maxBytes: DefaultMaxFileBytes,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessEvent schedules processing for a raw event. The per-path timer
// is armed once, with the window of the last matching rule; the single
// firing then re-resolves and executes every rule that still matches.
// Excluded paths are dropped by the debounce layer.
func (p *Processor) ProcessEvent(ev event.FileEvent) {
	rules := p.registry.MatchesForEvent(ev)
	if len(rules) == 0 {
		p.log.Debug("no rules matched", "path", ev.RelPath)
		return
	}

	window := rules[len(rules)-1].Debounce
	p.debounce.ScheduleWithCallback(ev.AbsPath, window, func() {
		p.fire(ev)
	})
}

// fire executes one debounced firing for a path. Rules are re-resolved
// against the current registry rather than a snapshot captured at event
// arrival, so registrations that changed in between take effect.
func (p *Processor) fire(ev event.FileEvent) {
	rules := p.registry.MatchesForEvent(ev)
	for _, rule := range rules {
		if err := p.executeRule(rule, ev); err != nil {
			p.log.Error("rule aborted firing",
				"rule", rule.Name, "path", ev.RelPath, "error", err)
			return
		}
	}
}

// executeRule runs one rule for one event. A returned error aborts the
// remaining rules for this firing; per-file problems (format,
// validation, size, disappearance) are logged and isolated instead.
func (p *Processor) executeRule(rule *match.RuleSpec, ev event.FileEvent) error {
	records, ok := p.readRecords(rule, ev)
	if !ok {
		return nil
	}

	if rule.Handler != nil {
		if err := rule.Handler(records, ev.AbsPath); err != nil {
			if rule.ContinueOnError {
				p.log.Warn("handler error swallowed",
					"rule", rule.Name, "path", ev.RelPath, "error", err)
			} else {
				return err
			}
		} else {
			p.log.Info("file processed",
				"rule", rule.Name, "path", ev.RelPath, "records", len(records))
		}
	}

	if len(rule.Actions) > 0 && p.dispatcher != nil {
		if err := p.dispatcher.DispatchRule(rule, []event.FileEvent{ev}); err != nil {
			// Launch failures surface regardless of the error policy.
			if errors.Is(err, errs.ErrAction) || !rule.ContinueOnError {
				return err
			}
			p.log.Warn("action error swallowed",
				"rule", rule.Name, "path", ev.RelPath, "error", err)
		}
	}

	return nil
}

// readRecords loads and parses the file for a rule. The second return is
// false when this rule should be skipped for this firing.
func (p *Processor) readRecords(rule *match.RuleSpec, ev event.FileEvent) ([]format.Record, bool) {
	if ev.Change == event.Deleted {
		// Nothing to read; handlers see the deletion with no records.
		return nil, true
	}

	info, err := os.Stat(ev.AbsPath)
	if err != nil {
		p.log.Warn("file disappeared before read", "path", ev.RelPath)
		return nil, false
	}
	if info.Size() > p.maxBytes {
		p.log.Warn("file exceeds size limit, skipping",
			"path", ev.RelPath, "size", info.Size(), "max_bytes", p.maxBytes)
		return nil, false
	}

	content, err := os.ReadFile(ev.AbsPath)
	if err != nil {
		p.log.Warn("file unreadable", "path", ev.RelPath, "error", err)
		return nil, false
	}

	codec := rule.Codec
	if codec == nil {
		codec = p.formats.ForPath(ev.AbsPath)
	}

	records, err := codec.Parse(content, rule.Schema)
	if err != nil {
		p.logParseError(ev, err)
		return nil, false
	}
	return records, true
}

// logParseError distinguishes broken files from unexpectedly shaped
// ones, so operators can tell the two apart from the log stream alone.
func (p *Processor) logParseError(ev event.FileEvent, err error) {
	var vErr *errs.ValidationError
	if errors.As(err, &vErr) {
		vErr.Path = ev.RelPath
		fields := make([]string, len(vErr.Fields))
		for i, f := range vErr.Fields {
			fields[i] = f.String()
		}
		p.log.Error("validation error",
			"path", ev.RelPath, "record", vErr.Record, "fields", fields)
		return
	}

	var fErr *errs.FormatError
	if errors.As(err, &fErr) {
		fErr.Path = ev.RelPath
	}
	p.log.Error("format error", "path", ev.RelPath, "error", err)
}
