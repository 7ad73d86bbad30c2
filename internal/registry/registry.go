// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package registry implements C3: the request registry that allocates
// bridge-scoped request ids and maps upstream response ids back to
// originating session + original client id, per spec §4.3.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bridgemcp/bridge/jsonrpc"
)

// Entry is one pending-request row, per spec §3 "Pending-request entry".
type Entry struct {
	BridgeID    string
	SessionID   string
	OriginalID  jsonrpc.ID
	Method      string
	SubmittedAt time.Time
	Deadline    time.Time // zero means no deadline
}

// Registry is the bridge-wide table of in-flight outbound requests.
// Operations are O(1) map lookups guarded by a single mutex (§5).
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	counter atomic.Int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// NextBridgeID returns a new, process-unique bridge id (§4.3).
func (r *Registry) NextBridgeID() string {
	n := r.counter.Add(1)
	return "b" + itoa(n)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Register records a forwarded outbound request, keyed by bridgeID.
// Notifications (no original id) must never be registered, per §4.3.
func (r *Registry) Register(bridgeID, sessionID string, originalID jsonrpc.ID, method string, deadline time.Duration) {
	e := &Entry{
		BridgeID:    bridgeID,
		SessionID:   sessionID,
		OriginalID:  originalID,
		Method:      method,
		SubmittedAt: time.Now(),
	}
	if deadline > 0 {
		e.Deadline = e.SubmittedAt.Add(deadline)
	}
	r.mu.Lock()
	r.entries[bridgeID] = e
	r.mu.Unlock()
}

// Resolve looks up and removes the entry for bridgeID, for use when the
// upstream produces a matching response. The bool reports whether an entry
// was found (a miss is logged at WARN by the caller and the response
// discarded, per §4.3).
func (r *Registry) Resolve(bridgeID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[bridgeID]
	if ok {
		delete(r.entries, bridgeID)
	}
	return e, ok
}

// SweepExpired removes and returns all entries whose deadline has passed,
// for the registry sweeper task to turn into synthetic timeout errors
// (§4.3, runs "every 1s" per spec).
func (r *Registry) SweepExpired(now time.Time) []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*Entry
	for id, e := range r.entries {
		if !e.Deadline.IsZero() && now.After(e.Deadline) {
			expired = append(expired, e)
			delete(r.entries, id)
		}
	}
	return expired
}

// DropSession removes all entries owned by sessionID, silently (the client
// is gone; per §4.4 Session.close, pending entries are dropped, not
// surfaced).
func (r *Registry) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.SessionID == sessionID {
			delete(r.entries, id)
		}
	}
}

// DrainAll removes and returns every pending entry, for use when the child
// restarts and all pending requests must fail with a restart error (§4.2,
// §4.9). The registry is empty after a restart, satisfying the "Restart
// recovery" property in spec §8.
func (r *Registry) DrainAll() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*Entry, 0, len(r.entries))
	for id, e := range r.entries {
		all = append(all, e)
		delete(r.entries, id)
	}
	return all
}

// Len reports the number of pending entries, for /health (§6.1).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
