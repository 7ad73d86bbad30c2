// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import (
	"encoding/json"

	"github.com/bridgemcp/bridge/jsonrpc"
)

// stringVisitor is applied to every string leaf found while walking a
// message's params/result payload. It returns the (possibly rewritten)
// string and whether it changed anything.
type stringVisitor func(s string) (string, bool)

// walkMessageStrings rewrites every string value reachable from msg's
// params (Request/Notification) or result (Response) using visit,
// returning a new message only if something actually changed.
func walkMessageStrings(msg jsonrpc.Message, visit stringVisitor) (jsonrpc.Message, bool, error) {
	changed := false
	rewrite := func(raw json.RawMessage) (json.RawMessage, error) {
		if len(raw) == 0 {
			return raw, nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return raw, nil
		}
		v = walkAny(v, visit, &changed)
		if !changed {
			return raw, nil
		}
		return json.Marshal(v)
	}

	switch m := msg.(type) {
	case *jsonrpc.Request:
		params, err := rewrite(m.Params)
		if err != nil {
			return msg, false, err
		}
		if !changed {
			return msg, false, nil
		}
		return &jsonrpc.Request{ID: m.ID, Method: m.Method, Params: params}, true, nil
	case *jsonrpc.Notification:
		params, err := rewrite(m.Params)
		if err != nil {
			return msg, false, err
		}
		if !changed {
			return msg, false, nil
		}
		return &jsonrpc.Notification{Method: m.Method, Params: params}, true, nil
	case *jsonrpc.Response:
		result, err := rewrite(m.Result)
		if err != nil {
			return msg, false, err
		}
		if !changed {
			return msg, false, nil
		}
		return &jsonrpc.Response{ID: m.ID, Result: result, Error: m.Error}, true, nil
	default:
		return msg, false, nil
	}
}

func walkAny(v any, visit stringVisitor, changed *bool) any {
	switch t := v.(type) {
	case string:
		out, ok := visit(t)
		if ok {
			*changed = true
			return out
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = walkAny(e, visit, changed)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = walkAny(e, visit, changed)
		}
		return t
	default:
		return v
	}
}

// collectMessageStrings returns every string leaf reachable from msg's
// params/result, for filters (like the blacklist) that only need to
// inspect content rather than rewrite it.
func collectMessageStrings(msg jsonrpc.Message) []string {
	var raw json.RawMessage
	switch m := msg.(type) {
	case *jsonrpc.Request:
		raw = m.Params
	case *jsonrpc.Notification:
		raw = m.Params
	case *jsonrpc.Response:
		raw = m.Result
	default:
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var out []string
	collectAny(v, &out)
	return out
}

func collectAny(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []any:
		for _, e := range t {
			collectAny(e, out)
		}
	case map[string]any:
		for _, e := range t {
			collectAny(e, out)
		}
	}
}
