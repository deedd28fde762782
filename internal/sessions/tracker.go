package sessions

import (
	"sync"

	"github.com/parley-ai/parley/pkg/models"
)

// Runtime is the in-process state of one active session. It is never
// persisted: a restart clears cancellation flags and suspended runs.
type Runtime struct {
	mu        sync.Mutex
	cancelled bool
	suspended *models.AgentState
}

// Cancel marks the session's current work for termination. Long-running
// loops observe the flag at their transition boundaries.
func (r *Runtime) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

// Cancelled reports and clears the cancellation flag. The flag applies to
// one run; the next turn starts clean.
func (r *Runtime) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cancelled
	r.cancelled = false
	return c
}

// PeekCancelled reports the flag without clearing it, for mid-run checks.
func (r *Runtime) PeekCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Suspend records a waiting agent run. A second suspension replaces the
// first; the replaced run is abandoned.
func (r *Runtime) Suspend(state *models.AgentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = state
}

// Resume takes and clears the suspended run, if any.
func (r *Runtime) Resume() *models.AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.suspended
	r.suspended = nil
	return s
}

// Suspended reports whether a run is waiting for user input.
func (r *Runtime) Suspended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended != nil
}

// Tracker maps session ids to their runtime state.
type Tracker struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{runtimes: map[string]*Runtime{}}
}

// Runtime returns the state for a session, creating it on first use.
func (t *Tracker) Runtime(sessionID string) *Runtime {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.runtimes[sessionID]
	if !ok {
		r = &Runtime{}
		t.runtimes[sessionID] = r
	}
	return r
}

// Forget drops a session's runtime state, typically on session delete.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runtimes, sessionID)
}
