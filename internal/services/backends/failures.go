package backends

import (
	"sync"
	"time"
)

// FailureState is a snapshot of one backend's failure record
type FailureState struct {
	ConsecutiveFailures int
	LastFailure         time.Time
	LastKind            FailureKind
	Disabled            bool
}

// failureEntry holds one backend's mutable failure record behind its own
// lock, so recording against one backend never serializes the others.
type failureEntry struct {
	mu    sync.Mutex
	state FailureState
}

// FailureTracker keeps per-backend consecutive-failure counters with a
// time-windowed auto-reset. Constructed once per process run and passed
// explicitly; there is no hidden singleton.
type FailureTracker struct {
	mu          sync.RWMutex
	entries     map[string]*failureEntry
	maxFailures int
	resetWindow time.Duration
}

// NewFailureTracker creates a tracker that disables a backend after
// maxFailures consecutive failures, re-enabling it after resetWindow.
func NewFailureTracker(maxFailures int, resetWindow time.Duration) *FailureTracker {
	return &FailureTracker{
		entries:     make(map[string]*failureEntry),
		maxFailures: maxFailures,
		resetWindow: resetWindow,
	}
}

func (t *FailureTracker) entry(backend string) *failureEntry {
	t.mu.RLock()
	e, ok := t.entries[backend]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[backend]; ok {
		return e
	}
	e = &failureEntry{}
	t.entries[backend] = e
	return e
}

// RecordSuccess resets the backend's counter and re-enables it
func (t *FailureTracker) RecordSuccess(backend string) {
	e := t.entry(backend)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = FailureState{}
}

// RecordFailure counts a failure against the backend. A permanent kind
// disables the backend immediately regardless of the counter.
func (t *FailureTracker) RecordFailure(backend string, kind FailureKind) {
	e := t.entry(backend)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.ConsecutiveFailures++
	e.state.LastFailure = time.Now()
	e.state.LastKind = kind

	if kind == FailurePermanent || kind == FailureContentPolicy {
		e.state.Disabled = true
		return
	}
	if e.state.ConsecutiveFailures >= t.maxFailures {
		e.state.Disabled = true
	}
}

// IsDisabled reports whether the backend is currently disabled. The reset
// window is checked lazily here rather than by a timer: a disabled backend
// whose last failure is older than the window is re-enabled on the spot.
func (t *FailureTracker) IsDisabled(backend string, now time.Time) bool {
	e := t.entry(backend)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Disabled {
		return false
	}
	if now.Sub(e.state.LastFailure) > t.resetWindow {
		e.state = FailureState{}
		return false
	}
	return true
}

// State returns a snapshot of the backend's failure record
func (t *FailureTracker) State(backend string) FailureState {
	e := t.entry(backend)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Sweep is the all-backends-disabled recovery pass: every disabled backend
// whose last failure kind is not exempt has its counter reduced by one, and
// is re-enabled if the counter drops below the disable threshold. Returns
// the names of re-enabled backends. Exempt backends stay disabled until
// their reset window naturally elapses.
func (t *FailureTracker) Sweep(exempt map[FailureKind]bool) []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	t.mu.RUnlock()

	var reenabled []string
	for _, name := range names {
		e := t.entry(name)
		e.mu.Lock()
		if e.state.Disabled && !exempt[e.state.LastKind] {
			if e.state.ConsecutiveFailures > 0 {
				e.state.ConsecutiveFailures--
			}
			if e.state.ConsecutiveFailures < t.maxFailures {
				e.state.Disabled = false
				reenabled = append(reenabled, name)
			}
		}
		e.mu.Unlock()
	}
	return reenabled
}
