// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package broker implements C5: the central coordinator wiring C2
// (child), C3 (registry), C4 (sessions), and C6 (filter chain) together,
// per spec §4.5.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bridgemcp/bridge/internal/child"
	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/internal/metrics"
	"github.com/bridgemcp/bridge/internal/registry"
	"github.com/bridgemcp/bridge/internal/session"
	"github.com/bridgemcp/bridge/jsonrpc"
)

// discoverySet is the method set answered from the catalog without ever
// reaching the child (§4.5.3).
var discoverySet = map[string]bool{
	"tools/list":     true,
	"resources/list": true,
	"prompts/list":   true,
}

// Child is the subset of *child.Supervisor the broker depends on,
// narrowed for testability.
type Child interface {
	Write(ctx context.Context, msg jsonrpc.Message) error
	State() child.State
}

// Broker is the central coordinator (§4.5).
type Broker struct {
	child    Child
	registry *registry.Registry
	sessions *session.Store
	chain    *filter.Chain
	catalog  *Catalog
	logger   *slog.Logger
	metrics  *metrics.Registry

	requestDeadline time.Duration

	droppedCount    atomic.Int64
	blockedCount    atomic.Int64
	unresolvedCount atomic.Int64
}

// New returns a Broker wiring the given components together. m may be
// nil (tests construct a Broker without a metrics registry).
func New(c Child, reg *registry.Registry, sessions *session.Store, chain *filter.Chain, catalog *Catalog, logger *slog.Logger, m *metrics.Registry, requestDeadline time.Duration) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if requestDeadline == 0 {
		requestDeadline = 60 * time.Second
	}
	return &Broker{
		child:           c,
		registry:        reg,
		sessions:        sessions,
		chain:           chain,
		catalog:         catalog,
		logger:          logger,
		metrics:         m,
		requestDeadline: requestDeadline,
	}
}

// RouteFromClient implements §4.5.1: ingress from a transport (SSE POST,
// WS frame, HTTP POST).
func (b *Broker) RouteFromClient(ctx context.Context, sessionID string, raw []byte) error {
	sess, err := b.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	if jsonrpc.IsBatch(raw) {
		sess.Enqueue(jsonrpc.NewError(jsonrpc.ID{}, jsonrpc.CodeInvalidRequest, "batched requests are not supported", nil))
		return nil
	}

	msg, err := jsonrpc.ClassifyStrict(raw)
	if err != nil {
		sess.Enqueue(jsonrpc.NewError(jsonrpc.ID{}, jsonrpc.CodeParseError, err.Error(), nil))
		return nil
	}

	if req, ok := msg.(*jsonrpc.Request); ok && discoverySet[req.Method] {
		if answered := b.answerFromCatalog(sess, req); answered {
			return nil
		}
	}
	if req, ok := msg.(*jsonrpc.Request); ok && req.Method == "initialize" {
		b.answerInitializeLocally(ctx, sess, req)
		// fall through: also forward to the child, fire-and-forget, so it
		// performs its own setup (§4.5.1 step 2).
	}

	result, transformed, ferr := b.chain.Run(filter.Outbound, sessionID, msg)
	if ferr != nil {
		b.logger.Warn("outbound filter error", "session_id", sessionID, "error", ferr)
	}
	switch result.Kind {
	case filter.Drop:
		b.droppedCount.Add(1)
		if b.metrics != nil {
			b.metrics.DroppedMessages.Inc()
		}
		return nil
	case filter.Block:
		b.blockedCount.Add(1)
		if b.metrics != nil {
			b.metrics.BlockedMessages.Inc()
		}
		if req, ok := msg.(*jsonrpc.Request); ok {
			sess.Enqueue(&jsonrpc.Response{ID: req.ID, Error: result.BlockErr})
		}
		return nil
	}
	msg = transformed

	return b.forwardToChild(ctx, sessionID, sess, msg)
}

// forwardToChild implements §4.9's "restart budget exhausted -> forwards
// return fixed error" row: a Dead or Terminal child never reaches
// child.Write, so a request gets a synthesized CodeUpstreamUnavailable
// response instead of silently vanishing into a process that can no
// longer accept input.
func (b *Broker) forwardToChild(ctx context.Context, sessionID string, sess *session.Session, msg jsonrpc.Message) error {
	if st := b.child.State(); st == child.Dead || st == child.Terminal {
		switch m := msg.(type) {
		case *jsonrpc.Request:
			sess.Enqueue(&jsonrpc.Response{
				ID: m.ID,
				Error: &jsonrpc.Error{
					Code:    jsonrpc.CodeUpstreamUnavailable,
					Message: "upstream child is unavailable",
				},
			})
		default:
			// Notifications have no id to key a response on; the caller
			// expects no reply either way, so just log the drop.
			b.logger.Warn("dropping notification, child unavailable", "session_id", sessionID, "child_state", st.String())
		}
		return nil
	}

	switch m := msg.(type) {
	case *jsonrpc.Request:
		bridgeID := b.registry.NextBridgeID()
		b.registry.Register(bridgeID, sessionID, m.ID, m.Method, b.requestDeadline)
		rewritten := &jsonrpc.Request{ID: jsonrpc.StringID(bridgeID), Method: m.Method, Params: m.Params}
		return b.child.Write(ctx, rewritten)
	default:
		return b.child.Write(ctx, msg)
	}
}

// answerFromCatalog implements the tools/list-style discovery short
// circuit (§4.5.1 step 2, §4.5.3). Returns false (not answered) if the
// catalog has nothing configured and the broker should fall through to
// forwarding the request itself — per spec, "may be empty list" still
// counts as answered, so this only returns false when there is no
// catalog concept for the method at all, which cannot happen for
// methods in discoverySet; kept as a bool return for symmetry with
// answerInitializeLocally and future short-circuit methods.
func (b *Broker) answerFromCatalog(sess *session.Session, req *jsonrpc.Request) bool {
	var entries any
	switch req.Method {
	case "tools/list":
		entries = map[string]any{"tools": b.catalog.Tools()}
	case "resources/list":
		entries = map[string]any{"resources": b.catalog.Resources()}
	case "prompts/list":
		entries = map[string]any{"prompts": b.catalog.Prompts()}
	default:
		return false
	}
	result, err := json.Marshal(entries)
	if err != nil {
		return false
	}
	sess.Enqueue(&jsonrpc.Response{ID: req.ID, Result: result})
	return true
}

// answerInitializeLocally implements the dual-answer behavior: the
// client's initialize is answered immediately from a bridge-declared
// capabilities object (§4.5.1 step 2, Open Question decided in
// DESIGN.md), while still being forwarded to the child below.
func (b *Broker) answerInitializeLocally(ctx context.Context, sess *session.Session, req *jsonrpc.Request) {
	caps := map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
			"prompts":   map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{"name": "bridgemcp", "version": "1.0"},
	}
	result, err := json.Marshal(caps)
	if err != nil {
		return
	}
	sess.Enqueue(&jsonrpc.Response{ID: req.ID, Result: result})
}

// RouteFromUpstream implements §4.5.2: ingress from the child's stdout,
// already decoded by C1/C2.
func (b *Broker) RouteFromUpstream(msg jsonrpc.Message) {
	result, transformed, ferr := b.chain.Run(filter.Inbound, "", msg)
	if ferr != nil {
		b.logger.Warn("inbound filter error", "error", ferr)
	}
	switch result.Kind {
	case filter.Drop:
		b.droppedCount.Add(1)
		if b.metrics != nil {
			b.metrics.DroppedMessages.Inc()
		}
		return
	case filter.Block:
		b.blockedCount.Add(1)
		if b.metrics != nil {
			b.metrics.BlockedMessages.Inc()
		}
		return
	}
	msg = transformed

	switch m := msg.(type) {
	case *jsonrpc.Response:
		b.routeResponse(m)
	case *jsonrpc.Notification:
		b.broadcast(m)
	case *jsonrpc.Request:
		// server-initiated request: broadcast by default (§4.5.2 step 4,
		// Open Question decided in DESIGN.md).
		b.broadcast(&jsonrpc.Notification{Method: m.Method, Params: m.Params})
	}
}

func (b *Broker) routeResponse(resp *jsonrpc.Response) {
	entry, ok := b.registry.Resolve(resp.ID.String())
	if !ok {
		b.unresolvedCount.Add(1)
		if b.metrics != nil {
			b.metrics.UnresolvedUpstream.Inc()
		}
		b.logger.Warn("response for unknown bridge id", "bridge_id", resp.ID.String())
		return
	}
	sess, err := b.sessions.Get(entry.SessionID)
	if err != nil {
		return // session gone; drop silently per §4.4
	}
	sess.Enqueue(&jsonrpc.Response{ID: entry.OriginalID, Result: resp.Result, Error: resp.Error})

	if resp.Error == nil && entry.Method == "initialize" {
		b.catalog.AdoptFromInitialize(resp.Result)
	}
}

func (b *Broker) broadcast(msg jsonrpc.Message) {
	for _, sess := range b.sessions.All() {
		sess.Enqueue(msg)
	}
}

// SweepExpired fails every registry entry whose deadline has passed with
// a synthesized JSON-RPC timeout error, per §4.3/§4.9. Intended to be
// called periodically ("every 1s") by the registry sweeper task (§5).
func (b *Broker) SweepExpired() {
	for _, e := range b.registry.SweepExpired(time.Now()) {
		sess, err := b.sessions.Get(e.SessionID)
		if err != nil {
			continue
		}
		sess.Enqueue(&jsonrpc.Response{
			ID: e.OriginalID,
			Error: &jsonrpc.Error{
				Code:    jsonrpc.CodeTimeout,
				Message: "request deadline exceeded",
			},
		})
	}
}

// FailAllPending fails every currently pending registry entry with the
// given reason, for use as the child supervisor's onRestart hook
// (§4.2 "fail pending with restart error").
func (b *Broker) FailAllPending(reason string) {
	for _, e := range b.registry.DrainAll() {
		sess, err := b.sessions.Get(e.SessionID)
		if err != nil {
			continue
		}
		sess.Enqueue(&jsonrpc.Response{
			ID: e.OriginalID,
			Error: &jsonrpc.Error{
				Code:    jsonrpc.CodeUpstreamRestarted,
				Message: reason,
			},
		})
	}
}

// Stats reports the broker's cumulative counters, for /metrics.
type Stats struct {
	Dropped    int64
	Blocked    int64
	Unresolved int64
}

// Stats returns a snapshot of the broker's cumulative counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Dropped:    b.droppedCount.Load(),
		Blocked:    b.blockedCount.Load(),
		Unresolved: b.unresolvedCount.Load(),
	}
}
