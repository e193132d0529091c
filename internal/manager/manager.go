// Package manager is a process-wide numeric-handle registry that owns
// sessions and routes control operations (start, pause, resume, stop) to
// them by handle.
package manager

import (
	"sync"

	"tthsd/internal/session"
)

// Manager is the process-wide handle → session registry. The handle map is
// guarded by a single lock held only for map mutations; sessions manage
// their own internal synchronization.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*session.Session
	nextID   int64
}

// New returns an empty Manager with handles allocated monotonically from 1.
func New() *Manager {
	return &Manager{sessions: make(map[int64]*session.Session)}
}

// Create allocates a fresh handle for cfg, optionally starting it
// immediately. Returns -1 on invalid input (cfg construction already
// rejects empty task lists and malformed tasks via session.NewConfig).
func (m *Manager) Create(cfg *session.Config, startImmediately bool) int64 {
	if cfg == nil {
		return -1
	}

	s := session.New(cfg, nil)

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.sessions[id] = s
	m.mu.Unlock()

	if startImmediately {
		if err := s.Start(); err != nil {
			m.mu.Lock()
			delete(m.sessions, id)
			m.mu.Unlock()
			return -1
		}
	}

	return id
}

// lookup returns the session for id, or nil if no such handle is registered.
func (m *Manager) lookup(id int64) *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Lookup and lifecycle failures are reported as a non-zero int, the
// encoding the FFI layer exposes across the C boundary.
const (
	codeOK           = 0
	codeNoSession    = 1
	codeSessionError = 2
)

// Start looks up id and starts it. Returns 0 on success, non-zero
// otherwise.
func (m *Manager) Start(id int64) int {
	s := m.lookup(id)
	if s == nil {
		return codeNoSession
	}
	if err := s.Start(); err != nil {
		return codeSessionError
	}
	return codeOK
}

// StartMultiple is a synonym for Start, mirroring session.Session's own
// Start/StartMultiple synonymy.
func (m *Manager) StartMultiple(id int64) int {
	s := m.lookup(id)
	if s == nil {
		return codeNoSession
	}
	if err := s.StartMultiple(); err != nil {
		return codeSessionError
	}
	return codeOK
}

// Pause looks up id and pauses it.
func (m *Manager) Pause(id int64) int {
	s := m.lookup(id)
	if s == nil {
		return codeNoSession
	}
	if err := s.Pause(); err != nil {
		return codeSessionError
	}
	return codeOK
}

// Resume looks up id and resumes it.
func (m *Manager) Resume(id int64) int {
	s := m.lookup(id)
	if s == nil {
		return codeNoSession
	}
	if err := s.Resume(); err != nil {
		return codeSessionError
	}
	return codeOK
}

// Stop looks up id, stops it, and removes the handle from the registry.
// The handle is removed once Stop has been accepted; Session.Stop only
// fires the cancel signal and returns, it doesn't wait for the run loop to
// exit.
func (m *Manager) Stop(id int64) int {
	s := m.lookup(id)
	if s == nil {
		return codeNoSession
	}
	if err := s.Stop(); err != nil {
		return codeSessionError
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	return codeOK
}

// Session exposes the underlying session for a handle, for callers (the
// FFI layer, tests) that need direct access beyond the lifecycle verbs.
func (m *Manager) Session(id int64) (*session.Session, bool) {
	s := m.lookup(id)
	return s, s != nil
}

// Count returns the number of currently registered sessions, for tests.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
