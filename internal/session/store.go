// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"io/fs"
	"sync"
	"time"

	"github.com/bridgemcp/bridge/internal/bridgeutil"
)

// Store owns the set of live sessions. Exactly one broker owns a Store
// (§3 Session invariant); Store itself only guards the map, not the
// sessions' internal state, which each Session guards independently.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	sessionTimeout time.Duration
	detachGrace    time.Duration
	maxQueueDepth  int
	hardCap        int
}

// Options configures a Store's defaults for newly created sessions.
type Options struct {
	SessionTimeout time.Duration // default 300s
	DetachGrace    time.Duration // default 15s
	MaxQueueDepth  int           // default 1024
	HardCap        int           // default 2048
}

// NewStore returns an empty Store.
func NewStore(opts Options) *Store {
	if opts.SessionTimeout == 0 {
		opts.SessionTimeout = 300 * time.Second
	}
	if opts.DetachGrace == 0 {
		opts.DetachGrace = 15 * time.Second
	}
	if opts.MaxQueueDepth == 0 {
		opts.MaxQueueDepth = 1024
	}
	if opts.HardCap == 0 {
		opts.HardCap = 2 * opts.MaxQueueDepth
	}
	return &Store{
		sessions:       make(map[string]*Session),
		sessionTimeout: opts.SessionTimeout,
		detachGrace:    opts.DetachGrace,
		maxQueueDepth:  opts.MaxQueueDepth,
		hardCap:        opts.HardCap,
	}
}

// Create generates a new session with a cryptographically random id and
// registers it (§4.4).
func (s *Store) Create(info ClientInfo) *Session {
	id := bridgeutil.NewToken()
	sess := New(id, s.maxQueueDepth, s.hardCap, info)
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess
}

// Get retrieves the session for id, or fs.ErrNotExist if there is none,
// matching the teacher SDK's SessionStore.Load convention.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return sess, nil
}

// Delete removes and closes the session for id. Idempotent.
func (s *Store) Delete(id string, reason string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		sess.Close(reason)
	}
}

// All returns a snapshot of every live session, for notification
// broadcast (§4.3, §4.5.2) and the idle-reaper.
func (s *Store) All() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	return all
}

// Len reports the number of live sessions, for /health.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ReapIdle closes and removes every session that has been idle beyond
// sessionTimeout, or whose sinks have all been detached for longer than
// detachGrace, returning the ids it reaped (§3 Session lifecycle).
func (s *Store) ReapIdle() []string {
	s.mu.Lock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.Unlock()

	var reaped []string
	for _, sess := range candidates {
		closed, _ := sess.Closed()
		if closed {
			s.Delete(sess.ID, "")
			reaped = append(reaped, sess.ID)
			continue
		}
		if sess.IdleSince() > s.sessionTimeout {
			s.Delete(sess.ID, "idle_timeout")
			reaped = append(reaped, sess.ID)
			continue
		}
		if sess.SinkCount() == 0 && sess.IdleSince() > s.detachGrace {
			// No attached sinks and past the grace period: nobody is
			// listening and nobody reconnected in time.
			s.Delete(sess.ID, "detach_grace_expired")
			reaped = append(reaped, sess.ID)
		}
	}
	return reaped
}
