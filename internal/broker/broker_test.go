// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bridgemcp/bridge/internal/child"
	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/internal/registry"
	"github.com/bridgemcp/bridge/internal/session"
	"github.com/bridgemcp/bridge/jsonrpc"
)

// fakeChild records every message written to it and lets tests control
// the reported health state.
type fakeChild struct {
	mu      sync.Mutex
	written []jsonrpc.Message
	state   child.State
}

func (f *fakeChild) Write(_ context.Context, msg jsonrpc.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, msg)
	return nil
}

func (f *fakeChild) State() child.State { return f.state }

func (f *fakeChild) last() jsonrpc.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

func (f *fakeChild) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []jsonrpc.Message
}

func (s *fakeSink) Deliver(msg jsonrpc.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, msg)
	return nil
}
func (s *fakeSink) Close(string) {}

func (s *fakeSink) last() jsonrpc.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.delivered) == 0 {
		return nil
	}
	return s.delivered[len(s.delivered)-1]
}

func newTestBroker(t *testing.T) (*Broker, *fakeChild, *session.Store) {
	t.Helper()
	fc := &fakeChild{state: child.Ready}
	reg := registry.New()
	store := session.NewStore(session.Options{})
	chain := filter.NewChain()
	catalog := NewCatalog()
	b := New(fc, reg, store, chain, catalog, nil, nil, 0)
	return b, fc, store
}

func TestRouteFromClientForwardsRequestWithRewrittenID(t *testing.T) {
	b, fc, store := newTestBroker(t)
	sess := store.Create(session.ClientInfo{})
	sink := &fakeSink{}
	sess.AttachSink(sink)

	raw := []byte(`{"jsonrpc":"2.0","id":"abc","method":"foo"}`)
	if err := b.RouteFromClient(context.Background(), sess.ID, raw); err != nil {
		t.Fatal(err)
	}
	if fc.count() != 1 {
		t.Fatalf("expected exactly one write to child, got %d", fc.count())
	}
	req := fc.last().(*jsonrpc.Request)
	if req.ID.String() == "abc" {
		t.Fatal("bridge id must be rewritten, not the client's original id")
	}
	if req.Method != "foo" {
		t.Fatalf("Method = %q, want foo", req.Method)
	}
}

func TestRouteFromClientMalformedJSONYieldsParseError(t *testing.T) {
	b, fc, store := newTestBroker(t)
	sess := store.Create(session.ClientInfo{})
	sink := &fakeSink{}
	sess.AttachSink(sink)

	if err := b.RouteFromClient(context.Background(), sess.ID, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if fc.count() != 0 {
		t.Fatal("malformed input must never reach the child")
	}
	resp, ok := sink.last().(*jsonrpc.Response)
	if !ok || resp.Error == nil || resp.Error.Code != jsonrpc.CodeParseError {
		t.Fatalf("expected a parse-error response, got %+v", sink.last())
	}
}

func TestRouteFromClientDiscoveryShortCircuit(t *testing.T) {
	b, fc, store := newTestBroker(t)
	b.catalog.v.Store(&catalogData{Tools: []CatalogEntry{{Name: "echo"}}})
	sess := store.Create(session.ClientInfo{})
	sink := &fakeSink{}
	sess.AttachSink(sink)

	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if err := b.RouteFromClient(context.Background(), sess.ID, raw); err != nil {
		t.Fatal(err)
	}
	if fc.count() != 0 {
		t.Fatal("tools/list must be answered from the catalog, never forwarded")
	}
	resp, ok := sink.last().(*jsonrpc.Response)
	if !ok {
		t.Fatalf("expected a response, got %+v", sink.last())
	}
	if !strings.Contains(string(resp.Result), "echo") {
		t.Fatalf("result = %s, want catalog entry echo", resp.Result)
	}
}

func TestRouteFromClientInitializeDualAnswer(t *testing.T) {
	b, fc, store := newTestBroker(t)
	sess := store.Create(session.ClientInfo{})
	sink := &fakeSink{}
	sess.AttachSink(sink)

	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	if err := b.RouteFromClient(context.Background(), sess.ID, raw); err != nil {
		t.Fatal(err)
	}
	if fc.count() != 1 {
		t.Fatalf("initialize must still be forwarded to the child, got %d writes", fc.count())
	}
	resp, ok := sink.last().(*jsonrpc.Response)
	if !ok || !strings.Contains(string(resp.Result), "protocolVersion") {
		t.Fatalf("expected a locally-answered initialize response, got %+v", sink.last())
	}
}

func TestRouteFromClientBlacklistBlocks(t *testing.T) {
	b, fc, store := newTestBroker(t)
	blocker := blockAllFilter{}
	b.chain.Register(blocker, filter.MaskBoth, true)
	sess := store.Create(session.ClientInfo{})
	sink := &fakeSink{}
	sess.AttachSink(sink)

	raw := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call"}`)
	if err := b.RouteFromClient(context.Background(), sess.ID, raw); err != nil {
		t.Fatal(err)
	}
	if fc.count() != 0 {
		t.Fatal("blocked request must never reach the child")
	}
	resp, ok := sink.last().(*jsonrpc.Response)
	if !ok || resp.Error == nil || resp.Error.Code != jsonrpc.CodeBlockedByPolicy {
		t.Fatalf("expected a blocked-by-policy response, got %+v", sink.last())
	}
}

type blockAllFilter struct{}

func (blockAllFilter) Name() string { return "block_all" }
func (blockAllFilter) Apply(_ filter.Direction, _ string, _ jsonrpc.Message) (filter.Result, error) {
	return filter.Result{
		Kind:     filter.Block,
		BlockErr: &jsonrpc.Error{Code: jsonrpc.CodeBlockedByPolicy, Message: "blocked by policy", Data: map[string]any{"reason": "test"}},
	}, nil
}

func TestRouteFromUpstreamResponseRewritesIDBack(t *testing.T) {
	b, fc, store := newTestBroker(t)
	sessA := store.Create(session.ClientInfo{})
	sessB := store.Create(session.ClientInfo{})
	sinkA, sinkB := &fakeSink{}, &fakeSink{}
	sessA.AttachSink(sinkA)
	sessB.AttachSink(sinkB)

	if err := b.RouteFromClient(context.Background(), sessA.ID, []byte(`{"jsonrpc":"2.0","id":"abc","method":"foo"}`)); err != nil {
		t.Fatal(err)
	}
	if err := b.RouteFromClient(context.Background(), sessB.ID, []byte(`{"jsonrpc":"2.0","id":"abc","method":"foo"}`)); err != nil {
		t.Fatal(err)
	}
	bridgeReqA := fc.written[0].(*jsonrpc.Request)
	bridgeReqB := fc.written[1].(*jsonrpc.Request)

	b.RouteFromUpstream(&jsonrpc.Response{ID: bridgeReqB.ID, Result: json.RawMessage(`"B"`)})
	b.RouteFromUpstream(&jsonrpc.Response{ID: bridgeReqA.ID, Result: json.RawMessage(`"A"`)})

	respA := sinkA.last().(*jsonrpc.Response)
	respB := sinkB.last().(*jsonrpc.Response)
	if respA.ID.String() != "abc" || string(respA.Result) != `"A"` {
		t.Fatalf("session A got %+v, want id=abc result=A", respA)
	}
	if respB.ID.String() != "abc" || string(respB.Result) != `"B"` {
		t.Fatalf("session B got %+v, want id=abc result=B", respB)
	}
}

func TestRouteFromUpstreamNotificationBroadcasts(t *testing.T) {
	b, _, store := newTestBroker(t)
	sessA := store.Create(session.ClientInfo{})
	sessB := store.Create(session.ClientInfo{})
	sinkA, sinkB := &fakeSink{}, &fakeSink{}
	sessA.AttachSink(sinkA)
	sessB.AttachSink(sinkB)

	b.RouteFromUpstream(&jsonrpc.Notification{Method: "notifications/progress"})

	if sinkA.last() == nil || sinkB.last() == nil {
		t.Fatal("expected both sessions to receive the broadcast notification")
	}
}

func TestRouteFromUpstreamUnresolvedResponseIsDropped(t *testing.T) {
	b, _, _ := newTestBroker(t)
	b.RouteFromUpstream(&jsonrpc.Response{ID: jsonrpc.StringID("b999"), Result: json.RawMessage(`1`)})
	if b.Stats().Unresolved != 1 {
		t.Fatalf("Unresolved = %d, want 1", b.Stats().Unresolved)
	}
}

func TestSweepExpiredSendsTimeoutError(t *testing.T) {
	b, _, store := newTestBroker(t)
	sess := store.Create(session.ClientInfo{})
	sink := &fakeSink{}
	sess.AttachSink(sink)

	b.registry.Register("b1", sess.ID, jsonrpc.IntID(1), "slow", time.Nanosecond)
	time.Sleep(time.Millisecond)
	b.SweepExpired()

	resp, ok := sink.last().(*jsonrpc.Response)
	if !ok || resp.Error == nil || resp.Error.Code != jsonrpc.CodeTimeout {
		t.Fatalf("expected a timeout response, got %+v", sink.last())
	}
}

func TestFailAllPendingUsesUpstreamRestartedCode(t *testing.T) {
	b, _, store := newTestBroker(t)
	sess := store.Create(session.ClientInfo{})
	sink := &fakeSink{}
	sess.AttachSink(sink)

	b.registry.Register("b1", sess.ID, jsonrpc.IntID(1), "slow", 0)
	b.FailAllPending("child process exited")

	resp, ok := sink.last().(*jsonrpc.Response)
	if !ok || resp.Error == nil || resp.Error.Code != jsonrpc.CodeUpstreamRestarted {
		t.Fatalf("expected an upstream-restarted response, got %+v", sink.last())
	}
}
