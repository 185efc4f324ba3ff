// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"sync"

	"github.com/bureau-foundation/parley/api"
)

// Store owns the authenticated session for the life of the process.
// At most one session is present at a time; replacing or clearing it
// closes the previous session's credential memory. Safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	session  *api.Session
	watchers map[int]func(*api.Session)
	nextID   int
}

// NewStore creates an empty Store (logged out).
func NewStore() *Store {
	return &Store{watchers: make(map[int]func(*api.Session))}
}

// Session returns the current session, or nil when logged out.
func (s *Store) Session() *api.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SetSession installs a session — a fresh login or a credential
// rotation. The previous session, if any, is closed. Watchers are
// notified with the new session.
func (s *Store) SetSession(session *api.Session) {
	s.mu.Lock()
	previous := s.session
	s.session = session
	watchers := s.watcherList()
	s.mu.Unlock()

	if previous != nil && previous != session {
		previous.Close()
	}
	for _, watcher := range watchers {
		watcher(session)
	}
}

// Clear logs out: the session is closed and watchers are notified
// with nil. A no-op when already logged out.
func (s *Store) Clear() {
	s.mu.Lock()
	previous := s.session
	s.session = nil
	watchers := s.watcherList()
	s.mu.Unlock()

	if previous == nil {
		return
	}
	previous.Close()
	for _, watcher := range watchers {
		watcher(nil)
	}
}

// Watch registers a callback fired on every session transition: login
// (non-nil), rotation (non-nil), logout (nil). Callbacks run on the
// goroutine that triggered the transition and must not call back into
// the Store's mutating methods. Returns a cancel function.
func (s *Store) Watch(watcher func(*api.Session)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = watcher
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// watcherList snapshots the watcher set. Caller holds the lock.
func (s *Store) watcherList() []func(*api.Session) {
	watchers := make([]func(*api.Session), 0, len(s.watchers))
	for _, watcher := range s.watchers {
		watchers = append(watchers, watcher)
	}
	return watchers
}
