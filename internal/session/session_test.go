// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"testing"
	"time"

	"github.com/bridgemcp/bridge/jsonrpc"
)

type fakeSink struct {
	delivered []jsonrpc.Message
	closed    bool
	reason    string
}

func (f *fakeSink) Deliver(msg jsonrpc.Message) error {
	f.delivered = append(f.delivered, msg)
	return nil
}

func (f *fakeSink) Close(reason string) {
	f.closed = true
	f.reason = reason
}

func TestEnqueueFanOutToSinks(t *testing.T) {
	s := New("s1", 10, 20, ClientInfo{})
	a, b := &fakeSink{}, &fakeSink{}
	s.AttachSink(a)
	s.AttachSink(b)

	s.Enqueue(&jsonrpc.Notification{Method: "ping"})

	if len(a.delivered) != 1 || len(b.delivered) != 1 {
		t.Fatalf("expected exactly one delivery per sink, got a=%d b=%d", len(a.delivered), len(b.delivered))
	}
}

func TestEnqueueResponseDeliveredToOnlyOneSink(t *testing.T) {
	s := New("s1", 10, 20, ClientInfo{})
	a, b := &fakeSink{}, &fakeSink{}
	s.AttachSink(a)
	s.AttachSink(b)

	s.Enqueue(&jsonrpc.Response{ID: jsonrpc.IntID(1), Result: []byte(`{}`)})

	total := len(a.delivered) + len(b.delivered)
	if total != 1 {
		t.Fatalf("expected the response delivered to exactly one sink, got a=%d b=%d", len(a.delivered), len(b.delivered))
	}
}

func TestEnqueueDropsOldestBeyondMaxQueueDepth(t *testing.T) {
	s := New("s1", 3, 1000, ClientInfo{})
	for i := 0; i < 10; i++ {
		s.Enqueue(&jsonrpc.Notification{Method: "tick"})
	}
	if s.QueueDepth() != 3 {
		t.Fatalf("queue depth = %d, want 3", s.QueueDepth())
	}
	if s.DroppedCount() != 7 {
		t.Fatalf("dropped = %d, want 7", s.DroppedCount())
	}
}

func TestEnqueueHardCapClosesSession(t *testing.T) {
	s := New("s1", 5, 10, ClientInfo{})
	sink := &fakeSink{}
	s.AttachSink(sink)

	var closedAt int
	for i := 0; i < 10; i++ {
		if s.Enqueue(&jsonrpc.Notification{Method: "tick"}) {
			closedAt = i
			break
		}
	}
	closed, reason := s.Closed()
	if !closed {
		t.Fatal("expected session to be closed at hard cap")
	}
	if reason != "slow_consumer" {
		t.Errorf("reason = %q, want slow_consumer", reason)
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}
	if closedAt == 0 {
		t.Error("expected hard cap to trigger partway through, not on the first message")
	}
}

func TestDetachSinkIdempotent(t *testing.T) {
	s := New("s1", 10, 20, ClientInfo{})
	sink := &fakeSink{}
	s.AttachSink(sink)
	s.DetachSink(sink)
	s.DetachSink(sink) // must not panic or misbehave

	if s.SinkCount() != 0 {
		t.Errorf("SinkCount() = %d, want 0", s.SinkCount())
	}
}

func TestCloseIdempotent(t *testing.T) {
	s := New("s1", 10, 20, ClientInfo{})
	sink := &fakeSink{}
	s.AttachSink(sink)

	s.Close("first")
	s.Close("second") // must not change the recorded reason or double-close

	closed, reason := s.Closed()
	if !closed || reason != "first" {
		t.Errorf("got closed=%v reason=%q, want true/first", closed, reason)
	}
}

func TestAttachSinkFlushesBufferedQueue(t *testing.T) {
	s := New("s1", 10, 20, ClientInfo{})
	s.Enqueue(&jsonrpc.Notification{Method: "buffered"})

	sink := &fakeSink{}
	s.AttachSink(sink)
	if len(sink.delivered) != 1 {
		t.Fatalf("expected buffered message to be flushed on attach, got %d", len(sink.delivered))
	}
}

func TestTouchResetsIdle(t *testing.T) {
	s := New("s1", 10, 20, ClientInfo{})
	time.Sleep(5 * time.Millisecond)
	s.Touch()
	if s.IdleSince() > 4*time.Millisecond {
		t.Errorf("IdleSince() = %v, want small duration after Touch", s.IdleSince())
	}
}
