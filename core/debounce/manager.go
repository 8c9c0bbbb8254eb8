// Package debounce implements per-path timer coalescing and temporary
// write-exclusion windows.
//
// Notification and readiness are deliberately decoupled: NotifyEvent
// records when an event arrived, IsReady answers when work should run.
// That split is what lets self-write exclusion compose with debouncing
// without races — an exclusion registered before a write lands simply
// turns the resulting notifications into no-ops.
package debounce

import (
	"sync"
	"time"
)

// entry is the per-path debounce state. At most one live timer exists
// per path; a new notification always cancels and replaces the old one.
type entry struct {
	timer *time.Timer
}

// Manager owns all per-path timers and the exclusion set. Safe for
// concurrent use; every timer fires on its own goroutine and never
// blocks shutdown.
type Manager struct {
	mu       sync.Mutex
	pending  map[string]*entry
	ready    map[string]struct{}
	excluded map[string]time.Time
	exTimers map[string]*time.Timer
	closed   bool
}

// NewManager builds an empty debounce manager.
func NewManager() *Manager {
	return &Manager{
		pending:  make(map[string]*entry),
		ready:    make(map[string]struct{}),
		excluded: make(map[string]time.Time),
		exTimers: make(map[string]*time.Timer),
	}
}

// NotifyEvent records a filesystem event for path, cancelling any
// in-flight timer and arming a new one for window. While the path is
// excluded this is a no-op. A window of zero or less marks the path
// ready immediately, before returning.
func (m *Manager) NotifyEvent(path string, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.isExcludedLocked(path) {
		return
	}

	if window <= 0 {
		m.cancelLocked(path)
		m.ready[path] = struct{}{}
		return
	}
	m.armLocked(path, window)
}

// IsReady atomically tests and clears the ready flag for path. Returns
// true at most once per timer firing.
func (m *Manager) IsReady(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ready[path]; ok {
		delete(m.ready, path)
		return true
	}
	return false
}

// ScheduleWithCallback runs callback once, window after the most recent
// notification for path. Excluded paths are a no-op; a window of zero or
// less invokes callback synchronously.
func (m *Manager) ScheduleWithCallback(path string, window time.Duration, callback func()) {
	m.mu.Lock()
	if m.closed || m.isExcludedLocked(path) {
		m.mu.Unlock()
		return
	}

	if window <= 0 {
		m.cancelLocked(path)
		m.mu.Unlock()
		callback()
		return
	}

	m.cancelLocked(path)
	e := &entry{}
	e.timer = time.AfterFunc(window, func() {
		m.consume(path, e)
		callback()
	})
	m.pending[path] = e
	m.mu.Unlock()
}

// ExcludeTemporarily adds path to the exclusion set for duration and
// schedules its own removal. Exclusion only suppresses new
// notifications; an already-armed timer keeps running, which is why
// callers must register the exclusion before their write lands.
func (m *Manager) ExcludeTemporarily(path string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.excluded[path] = time.Now().Add(duration)
	if old, ok := m.exTimers[path]; ok {
		old.Stop()
	}
	m.exTimers[path] = time.AfterFunc(duration, func() {
		m.removeExclusion(path)
	})
}

// IsExcluded reports whether path is currently excluded. Pure read.
func (m *Manager) IsExcluded(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isExcludedLocked(path)
}

// PendingCount returns the number of live timers, for tests and
// housekeeping metrics.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CleanupStale drops exclusion entries whose expiry passed without the
// removal timer having run yet.
func (m *Manager) CleanupStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for path, expiry := range m.excluded {
		if !expiry.After(now) {
			delete(m.excluded, path)
			if t, ok := m.exTimers[path]; ok {
				t.Stop()
				delete(m.exTimers, path)
			}
		}
	}
}

// ClearAll cancels every live timer and resets all state. Idempotent and
// safe against concurrent notifications: once closed, the manager stays
// empty until Reset.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.pending {
		e.timer.Stop()
	}
	for _, t := range m.exTimers {
		t.Stop()
	}
	m.pending = make(map[string]*entry)
	m.ready = make(map[string]struct{})
	m.excluded = make(map[string]time.Time)
	m.exTimers = make(map[string]*time.Timer)
	m.closed = true
}

// Reset reopens a cleared manager. Used by the engine when watch loops
// restart after a reload.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// armLocked cancels any live timer for path and starts a new one that
// marks the path ready on expiry. Caller holds m.mu.
func (m *Manager) armLocked(path string, window time.Duration) {
	m.cancelLocked(path)

	e := &entry{}
	e.timer = time.AfterFunc(window, func() {
		m.markReady(path, e)
	})
	m.pending[path] = e
}

// cancelLocked stops and removes the live timer for path, if any.
// Caller holds m.mu.
func (m *Manager) cancelLocked(path string) {
	if e, ok := m.pending[path]; ok {
		e.timer.Stop()
		delete(m.pending, path)
	}
}

// markReady runs on timer expiry: set the ready flag exactly once and
// drop the timer entry, unless the timer was replaced in the meantime.
func (m *Manager) markReady(path string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.pending[path]; !ok || current != e {
		return
	}
	delete(m.pending, path)
	m.ready[path] = struct{}{}
}

// consume mirrors markReady for callback-style scheduling: it only
// removes the timer entry, readiness being implied by the callback run.
func (m *Manager) consume(path string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.pending[path]; ok && current == e {
		delete(m.pending, path)
	}
}

// removeExclusion runs on exclusion expiry.
func (m *Manager) removeExclusion(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.excluded, path)
	delete(m.exTimers, path)
}

// isExcludedLocked checks the exclusion set, treating expired entries
// whose removal timer has not run yet as already gone. Caller holds m.mu.
func (m *Manager) isExcludedLocked(path string) bool {
	expiry, ok := m.excluded[path]
	if !ok {
		return false
	}
	if !expiry.After(time.Now()) {
		delete(m.excluded, path)
		return false
	}
	return true
}
