// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package session implements C4: per-client session objects, each owning
// an outbound message queue and zero or more attached transport sinks, per
// spec §3 "Session" and §4.4.
package session

import (
	"sync"
	"time"

	"github.com/bridgemcp/bridge/jsonrpc"
)

// Sink is a live writer attached to a session: an SSE stream or a WS
// connection (§3 "Sink"). Detach must be idempotent and must never keep
// the session alive (§4 Ownership).
type Sink interface {
	// Deliver pushes msg to the remote client. It must not block
	// indefinitely; a slow sink is the session's problem to manage via
	// backpressure (§4.7.4), not the sink's.
	Deliver(msg jsonrpc.Message) error
	// Close detaches and terminates the sink's underlying connection.
	Close(reason string)
}

// ClientInfo records where a session came from, for logging and /health.
type ClientInfo struct {
	UserAgent string
	RemoteIP  string
}

// Session is one client's logical connection to the bridge (§3).
//
// All mutation of outbound queue and attached sinks is serialized by the
// session's own mutex; external code never touches queue internals
// directly (§4.4 invariants, §5 shared-resource discipline).
type Session struct {
	ID         string
	Priority   string // default "normal"
	ClientInfo ClientInfo
	CreatedAt  time.Time

	maxQueueDepth int
	hardCap       int

	mu             sync.Mutex
	lastActivityAt time.Time
	queue          []jsonrpc.Message
	sinks          map[Sink]struct{}
	closed         bool
	closeReason    string
	droppedOldest  int64
	totalEnqueued  int64
}

// New returns a Session with the given id, queue limits, and client info.
func New(id string, maxQueueDepth, hardCap int, info ClientInfo) *Session {
	if maxQueueDepth <= 0 {
		maxQueueDepth = 1024
	}
	if hardCap <= 0 {
		hardCap = 2 * maxQueueDepth
	}
	now := time.Now()
	return &Session{
		ID:             id,
		Priority:       "normal",
		ClientInfo:     info,
		CreatedAt:      now,
		lastActivityAt: now,
		maxQueueDepth:  maxQueueDepth,
		hardCap:        hardCap,
		sinks:          make(map[Sink]struct{}),
	}
}

// Touch records activity, resetting the idle timeout clock (§5).
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.mu.Unlock()
}

// IdleSince reports how long the session has been idle.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivityAt)
}

// AttachSink adds sink to the session's live set and flushes any buffered
// queue contents to it immediately (§4.4).
func (s *Session) AttachSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sink.Close("session closed")
		return
	}
	s.sinks[sink] = struct{}{}
	for _, m := range s.queue {
		sink.Deliver(m)
	}
}

// DetachSink removes sink from the live set. Idempotent: detaching a sink
// that isn't attached (or detaching twice) is a no-op (§4 Ownership).
func (s *Session) DetachSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, sink)
}

// SinkCount reports the number of currently attached sinks.
func (s *Session) SinkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sinks)
}

// Enqueue appends msg to the outbound queue and delivers it to attached
// sinks (§4.4). Requests and notifications fan out, one copy each, to
// every attached sink; a Response keyed to an original_id is delivered
// at most once across all sinks, since it answers a single client call
// and a client with two concurrently attached sinks (e.g. mid
// SSE-to-WS handoff) must only ever see one copy of the answer. If the
// queue exceeds maxQueueDepth, the oldest message is dropped and a
// counter incremented (slow-consumer signal); once the cumulative
// number of messages ever enqueued on this session reaches hardCap, the
// session is closed with reason "slow_consumer" (§4.7.4, §8 Scenario F:
// 2000 sent at max_queue_depth=1024 leaves the session open with 976
// dropped, but hard_cap=2048 would close it).
func (s *Session) Enqueue(msg jsonrpc.Message) (closed bool) {
	_, isResponse := msg.(*jsonrpc.Response)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.queue = append(s.queue, msg)
	s.totalEnqueued++
	for len(s.queue) > s.maxQueueDepth {
		s.queue = s.queue[1:]
		s.droppedOldest++
	}
	hardCapHit := s.totalEnqueued >= int64(s.hardCap)
	sinks := make([]Sink, 0, len(s.sinks))
	for sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.mu.Unlock()

	if isResponse && len(sinks) > 1 {
		sinks = sinks[:1]
	}
	for _, sink := range sinks {
		sink.Deliver(msg)
	}

	if hardCapHit {
		s.Close("slow_consumer")
		return true
	}
	return false
}

// DroppedCount reports how many messages have been dropped for slow
// consumption, for /health and /metrics.
func (s *Session) DroppedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedOldest
}

// QueueDepth reports the current queue length, for /health.
func (s *Session) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close idempotently detaches and closes every attached sink, and marks
// the session terminated (§4.4).
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeReason = reason
	sinks := make([]Sink, 0, len(s.sinks))
	for sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.sinks = make(map[Sink]struct{})
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Close(reason)
	}
}

// Closed reports whether the session has been terminated.
func (s *Session) Closed() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeReason
}
