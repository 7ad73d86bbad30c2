// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package filter implements C6: the ordered, named, individually
// toggleable filter chain with direction-aware hooks, per spec §4.6.
package filter

import (
	"sync/atomic"

	"github.com/bridgemcp/bridge/jsonrpc"
)

// Direction is which leg of the bridge a message is traveling.
type Direction int

const (
	// Outbound is client -> upstream child.
	Outbound Direction = iota
	// Inbound is upstream child -> client.
	Inbound
)

// DirectionMask selects which directions a Filter participates in.
type DirectionMask int

const (
	MaskOutbound DirectionMask = 1 << iota
	MaskInbound
	MaskBoth = MaskOutbound | MaskInbound
)

func (m DirectionMask) allows(d Direction) bool {
	switch d {
	case Outbound:
		return m&MaskOutbound != 0
	case Inbound:
		return m&MaskInbound != 0
	default:
		return false
	}
}

// ResultKind is the variant of a FilterResult (§3 "FilterResult").
type ResultKind int

const (
	Pass ResultKind = iota
	Transform
	Drop
	Block
)

// Result is the value returned by a filter invocation.
type Result struct {
	Kind      ResultKind
	Message   jsonrpc.Message // set for Transform
	Reason    string          // set for Drop
	BlockErr  *jsonrpc.Error  // set for Block
}

// PassResult is the canonical Pass outcome.
func PassResult() Result { return Result{Kind: Pass} }

// Filter is a named unit in the filter chain (§3 "Filter").
//
// Apply MUST be pure with respect to external state except for the
// filter's own counters (§4.6) and MUST NOT perform blocking I/O; filters
// needing I/O run on a dedicated offload pool (§5), which is the caller's
// responsibility, not this interface's.
type Filter interface {
	Name() string
	Apply(direction Direction, sessionID string, msg jsonrpc.Message) (Result, error)
}

// entry pairs a Filter with its runtime-toggleable state.
type entry struct {
	filter  Filter
	mask    DirectionMask
	enabled atomic.Bool
}

// Chain is the ordered collection of registered filters. Order is fixed at
// registration time and is part of configuration (§4.6); only the enabled
// flag is mutable afterward.
type Chain struct {
	entries []*entry
	byName  map[string]*entry
	onAudit AuditFunc
}

// AuditFunc receives every non-Pass outcome Run produces, naming the
// filter responsible and the message before/after it ran, so a caller
// can maintain an audit trail without Run itself knowing how one is
// recorded (§4.8's per-action audit log is the first user of this).
type AuditFunc func(filterName, sessionID string, kind ResultKind, reason string, before, after jsonrpc.Message)

// NewChain returns an empty Chain.
func NewChain() *Chain {
	return &Chain{byName: make(map[string]*entry)}
}

// SetAuditHook installs fn to be called for every non-Pass filter
// outcome Run produces. A nil fn disables auditing.
func (c *Chain) SetAuditHook(fn AuditFunc) {
	c.onAudit = fn
}

// Register appends f to the chain with the given direction mask and
// initial enabled state. Registration order is chain invocation order.
func (c *Chain) Register(f Filter, mask DirectionMask, enabled bool) {
	e := &entry{filter: f, mask: mask}
	e.enabled.Store(enabled)
	c.entries = append(c.entries, e)
	c.byName[f.Name()] = e
}

// SetEnabled toggles a registered filter by name. Returns false if no such
// filter is registered. Idempotent (§8 "Filter toggle idempotence").
func (c *Chain) SetEnabled(name string, enabled bool) bool {
	e, ok := c.byName[name]
	if !ok {
		return false
	}
	e.enabled.Store(enabled)
	return true
}

// Status describes one filter's current runtime state, for GET /filters.
type Status struct {
	Name      string
	Enabled   bool
	Mask      DirectionMask
}

// List returns the current status of every registered filter, in
// registration order.
func (c *Chain) List() []Status {
	out := make([]Status, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, Status{Name: e.filter.Name(), Enabled: e.enabled.Load(), Mask: e.mask})
	}
	return out
}

// Counter is implemented by filters that track named per-category
// counters (e.g. redactions by PII type, blocks by rule), surfaced at
// GET /filters/metrics (§8 Scenario C).
type Counter interface {
	Counts() map[string]int64
}

// Counts returns the per-category counters of every registered filter
// that implements Counter, keyed by filter name.
func (c *Chain) Counts() map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	for _, e := range c.entries {
		if ctr, ok := e.filter.(Counter); ok {
			out[e.filter.Name()] = ctr.Counts()
		}
	}
	return out
}

// Run invokes every enabled filter whose mask matches direction, in
// registration order, halting on the first non-Pass result (§4.6). A
// filter invocation error is treated like Pass (the message continues
// unmodified) but is returned to the caller for logging.
func (c *Chain) Run(direction Direction, sessionID string, msg jsonrpc.Message) (Result, jsonrpc.Message, error) {
	current := msg
	for _, e := range c.entries {
		if !e.enabled.Load() || !e.mask.allows(direction) {
			continue
		}
		res, err := e.filter.Apply(direction, sessionID, current)
		if err != nil {
			return Result{Kind: Pass}, current, err
		}
		switch res.Kind {
		case Pass:
			continue
		case Transform:
			if c.onAudit != nil {
				c.onAudit(e.filter.Name(), sessionID, res.Kind, res.Reason, current, res.Message)
			}
			current = res.Message
			continue
		case Drop, Block:
			if c.onAudit != nil {
				c.onAudit(e.filter.Name(), sessionID, res.Kind, res.Reason, current, current)
			}
			return res, current, nil
		}
	}
	return Result{Kind: Pass}, current, nil
}
