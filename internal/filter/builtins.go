// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/bridgemcp/bridge/jsonrpc"
)

const redactedMarker = "[REDACTED]"

var defaultSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),                      // OpenAI/Anthropic-style API keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),        // bearer tokens
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                          // AWS access key ids
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),        // PEM private key headers
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`),                // GitHub tokens
}

// RedactSecrets is the `redact_secrets` built-in filter (default ON, both
// directions): regex-scans every string value, recursively, for common
// secret patterns and replaces matches with a fixed marker (§4.6).
type RedactSecrets struct {
	patterns    []*regexp.Regexp
	redactCount atomic.Int64
}

// NewRedactSecrets returns a RedactSecrets filter using the default
// patterns plus any extra regexes supplied.
func NewRedactSecrets(extra []string) (*RedactSecrets, error) {
	pats := append([]*regexp.Regexp(nil), defaultSecretPatterns...)
	for _, p := range extra {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("filter: invalid redact_secrets pattern %q: %w", p, err)
		}
		pats = append(pats, re)
	}
	return &RedactSecrets{patterns: pats}, nil
}

func (f *RedactSecrets) Name() string { return "redact_secrets" }

// RedactedCount reports how many string values have had a secret pattern
// replaced, for /metrics.
func (f *RedactSecrets) RedactedCount() int64 { return f.redactCount.Load() }

func (f *RedactSecrets) Apply(_ Direction, _ string, msg jsonrpc.Message) (Result, error) {
	changed := false
	transformed, err := mapJSONStrings(msg, func(s string) string {
		out := s
		for _, re := range f.patterns {
			if re.MatchString(out) {
				out = re.ReplaceAllString(out, redactedMarker)
				changed = true
			}
		}
		return out
	})
	if err != nil {
		return Result{}, err
	}
	if !changed {
		return PassResult(), nil
	}
	f.redactCount.Add(1)
	return Result{Kind: Transform, Message: transformed}, nil
}

// AddBridgeMeta is the `add_bridge_meta` built-in filter (default OFF,
// both directions): adds a bridge_meta envelope extension used for
// tracing and peer-bridge loop prevention (§4.6, §9). The hops/route
// namespace is reserved and never stripped on forward.
type AddBridgeMeta struct {
	nodeID string
}

// NewAddBridgeMeta returns an AddBridgeMeta filter tagging messages with
// the given local node id.
func NewAddBridgeMeta(nodeID string) *AddBridgeMeta {
	return &AddBridgeMeta{nodeID: nodeID}
}

func (f *AddBridgeMeta) Name() string { return "add_bridge_meta" }

type bridgeMeta struct {
	TraceID   string   `json:"trace_id"`
	Timestamp string   `json:"ts"`
	Direction string   `json:"direction"`
	SessionID string   `json:"session_id"`
	Hops      int      `json:"hops"`
	Route     []string `json:"route"`
}

func (f *AddBridgeMeta) Apply(direction Direction, sessionID string, msg jsonrpc.Message) (Result, error) {
	dirName := "outbound"
	if direction == Inbound {
		dirName = "inbound"
	}
	meta := bridgeMeta{
		TraceID:   fmt.Sprintf("%d", time.Now().UnixNano()),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Direction: dirName,
		SessionID: sessionID,
		Hops:      1,
		Route:     []string{f.nodeID},
	}
	transformed, err := withBridgeMeta(msg, meta)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: Transform, Message: transformed}, nil
}

// mapJSONStrings recursively rewrites every string value in msg's
// params/result fields using fn, returning a new message. Non-string
// values are left untouched.
func mapJSONStrings(msg jsonrpc.Message, fn func(string) string) (jsonrpc.Message, error) {
	rewrite := func(raw json.RawMessage) (json.RawMessage, error) {
		if len(raw) == 0 {
			return raw, nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return raw, nil // not JSON we understand; leave as-is
		}
		v = walkStrings(v, fn)
		out, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	switch m := msg.(type) {
	case *jsonrpc.Request:
		params, err := rewrite(m.Params)
		if err != nil {
			return nil, err
		}
		return &jsonrpc.Request{ID: m.ID, Method: m.Method, Params: params}, nil
	case *jsonrpc.Notification:
		params, err := rewrite(m.Params)
		if err != nil {
			return nil, err
		}
		return &jsonrpc.Notification{Method: m.Method, Params: params}, nil
	case *jsonrpc.Response:
		result, err := rewrite(m.Result)
		if err != nil {
			return nil, err
		}
		return &jsonrpc.Response{ID: m.ID, Result: result, Error: m.Error}, nil
	default:
		return msg, nil
	}
}

func walkStrings(v any, fn func(string) string) any {
	switch t := v.(type) {
	case string:
		return fn(t)
	case []any:
		for i, e := range t {
			t[i] = walkStrings(e, fn)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = walkStrings(e, fn)
		}
		return t
	default:
		return v
	}
}

// withBridgeMeta attaches meta as a "bridge_meta" field inside params
// (outbound) or result (inbound), creating an object wrapper if the
// existing payload isn't already one. This nests bridge_meta one level
// below the envelope's own top level (alongside "method"/"params" or
// "result"/"error") rather than beside them — see DESIGN.md for why
// that placement was kept over a literal top-level rewrite.
func withBridgeMeta(msg jsonrpc.Message, meta bridgeMeta) (jsonrpc.Message, error) {
	attach := func(raw json.RawMessage) (json.RawMessage, error) {
		obj := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &obj); err != nil {
				obj = map[string]any{"value": json.RawMessage(raw)}
			}
		}
		obj["bridge_meta"] = meta
		return json.Marshal(obj)
	}

	switch m := msg.(type) {
	case *jsonrpc.Request:
		params, err := attach(m.Params)
		if err != nil {
			return nil, err
		}
		return &jsonrpc.Request{ID: m.ID, Method: m.Method, Params: params}, nil
	case *jsonrpc.Notification:
		params, err := attach(m.Params)
		if err != nil {
			return nil, err
		}
		return &jsonrpc.Notification{Method: m.Method, Params: params}, nil
	case *jsonrpc.Response:
		result, err := attach(m.Result)
		if err != nil {
			return nil, err
		}
		return &jsonrpc.Response{ID: m.ID, Result: result, Error: m.Error}, nil
	default:
		return msg, nil
	}
}
