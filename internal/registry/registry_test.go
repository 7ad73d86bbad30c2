// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package registry

import (
	"testing"
	"time"

	"github.com/bridgemcp/bridge/jsonrpc"
)

func TestRegisterResolve(t *testing.T) {
	r := New()
	id := r.NextBridgeID()
	r.Register(id, "s1", jsonrpc.StringID("abc"), "foo", time.Minute)

	e, ok := r.Resolve(id)
	if !ok {
		t.Fatal("expected entry to resolve")
	}
	if e.SessionID != "s1" || e.OriginalID.String() != "abc" {
		t.Errorf("got %+v", e)
	}

	if _, ok := r.Resolve(id); ok {
		t.Error("expected second resolve to miss")
	}
}

func TestResolveMiss(t *testing.T) {
	r := New()
	if _, ok := r.Resolve("nonexistent"); ok {
		t.Error("expected miss")
	}
}

func TestSweepExpired(t *testing.T) {
	r := New()
	id := r.NextBridgeID()
	r.Register(id, "s1", jsonrpc.IntID(1), "foo", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	expired := r.SweepExpired(time.Now())
	if len(expired) != 1 {
		t.Fatalf("got %d expired, want 1", len(expired))
	}
	if r.Len() != 0 {
		t.Errorf("registry should be empty after sweep, got %d", r.Len())
	}
}

func TestDropSession(t *testing.T) {
	r := New()
	id1 := r.NextBridgeID()
	id2 := r.NextBridgeID()
	r.Register(id1, "s1", jsonrpc.IntID(1), "foo", 0)
	r.Register(id2, "s2", jsonrpc.IntID(2), "bar", 0)

	r.DropSession("s1")
	if r.Len() != 1 {
		t.Fatalf("got %d entries, want 1", r.Len())
	}
	if _, ok := r.Resolve(id2); !ok {
		t.Error("expected s2 entry to survive")
	}
}

func TestDrainAll(t *testing.T) {
	r := New()
	r.Register(r.NextBridgeID(), "s1", jsonrpc.IntID(1), "foo", 0)
	r.Register(r.NextBridgeID(), "s2", jsonrpc.IntID(2), "bar", 0)

	all := r.DrainAll()
	if len(all) != 2 {
		t.Fatalf("got %d, want 2", len(all))
	}
	if r.Len() != 0 {
		t.Error("registry should be empty after DrainAll")
	}
}

func TestNextBridgeIDUnique(t *testing.T) {
	r := New()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := r.NextBridgeID()
		if seen[id] {
			t.Fatalf("duplicate bridge id %q", id)
		}
		seen[id] = true
	}
}
