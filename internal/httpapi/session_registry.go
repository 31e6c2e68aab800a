package httpapi

import (
	"sync"
)

// SessionRegistry tracks active interview sessions and supports graceful
// draining. When draining is enabled, new sessions are rejected while
// in-flight sessions finish naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Add(), preventing
// a TOCTOU race where StartDraining+Wait could be called between the draining
// check and wg.Add.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	active   map[string]struct{}
	wg       sync.WaitGroup
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{active: make(map[string]struct{})}
}

// Add registers a new active session. Returns false if the registry is
// draining, meaning no new sessions should be accepted, or if the session is
// already registered. The draining check and WaitGroup increment are performed
// atomically under a mutex.
func (sr *SessionRegistry) Add(sessionID string) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	if _, ok := sr.active[sessionID]; ok {
		return false
	}
	sr.active[sessionID] = struct{}{}
	sr.wg.Add(1)
	return true
}

// Done marks a session as completed. Unknown session IDs are ignored, so the
// end handler and the stale-session reaper can both call it without
// coordinating. Sessions started before a server restart were never Added and
// must not unbalance the WaitGroup.
func (sr *SessionRegistry) Done(sessionID string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if _, ok := sr.active[sessionID]; !ok {
		return
	}
	delete(sr.active, sessionID)
	sr.wg.Done()
}

// StartDraining sets the draining flag so that future Add calls return false.
// This is safe to call concurrently with Add, the mutex ensures no Add can
// slip through after StartDraining returns.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of currently active sessions.
func (sr *SessionRegistry) ActiveCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.active)
}

// Wait blocks until all active sessions have completed (all Done calls matched
// Add calls).
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}
