// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc defines the JSON-RPC 2.0 envelope used on both sides of
// the bridge: the network side (SSE/WS/HTTP clients) and the stdio side
// (the wrapped child process).
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the only jsonrpc value this bridge accepts or emits.
const ProtocolVersion = "2.0"

// A Message is either a Request, a Notification, a Response, or a batch.
// The bridge rejects batches (§6.7 of the spec): batching support is not
// part of this wire protocol.
type Message interface {
	isMessage()
}

// ID is a JSON-RPC request id: a string, an integer, or null.
// Per the spec, the zero ID is not a valid request id; use IsValid to
// distinguish an explicit id from an absent one (e.g. on notifications).
type ID struct {
	value any // nil, string, or int64
	set   bool
}

// StringID returns an ID holding a string value.
func StringID(s string) ID { return ID{value: s, set: true} }

// IntID returns an ID holding an integer value.
func IntID(i int64) ID { return ID{value: i, set: true} }

// IsValid reports whether the ID was explicitly set (as opposed to the
// zero ID, which denotes "no id" — e.g. for notifications).
func (id ID) IsValid() bool { return id.set }

// Raw returns the underlying string or int64 value, or nil if unset.
func (id ID) Raw() any { return id.value }

func (id ID) String() string {
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	switch v := id.value.(type) {
	case string:
		return json.Marshal(v)
	case int64:
		return json.Marshal(v)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID{value: s, set: true}
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*id = ID{value: i, set: true}
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a string, integer, or null, got %q", data)
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int64          `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Error codes from the bridge's taxonomy (spec §7).
const (
	CodeParseError          = -32700
	CodeInvalidRequest      = -32600
	CodeMethodNotFound      = -32601
	CodeTimeout             = -32000
	CodeBlockedByPolicy     = -32001
	CodeUpstreamUnavailable = -32002
	CodeUpstreamRestarted   = -32003
)

// envelope is the wire representation shared by Request, Notification, and
// Response, before classification.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Request is a JSON-RPC request: has both method and id.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

func (*Request) isMessage() {}

// Notification is a JSON-RPC notification: has method, no id.
type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Notification) isMessage() {}

// Response is a JSON-RPC response: has id and (result xor error), no method.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *Error
}

func (*Response) isMessage() {}

// Classify inspects the envelope fields present in data and returns the
// concrete Message type, per spec §3: a request has method+id, a
// notification has method and no id, a response has id and (result|error)
// and no method.
func Classify(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("jsonrpc: malformed message: %w", err)
	}
	if env.JSONRPC != ProtocolVersion {
		return nil, fmt.Errorf("jsonrpc: unsupported jsonrpc version %q", env.JSONRPC)
	}
	hasMethod := env.Method != ""
	hasID := env.ID != nil && env.ID.IsValid()
	hasResultOrError := env.Result != nil || env.Error != nil

	switch {
	case hasMethod && hasID:
		return &Request{ID: *env.ID, Method: env.Method, Params: env.Params}, nil
	case hasMethod && !hasID:
		return &Notification{Method: env.Method, Params: env.Params}, nil
	case !hasMethod && hasID && hasResultOrError:
		return &Response{ID: *env.ID, Result: env.Result, Error: env.Error}, nil
	case !hasMethod && hasID:
		// An id with neither method nor result/error matches none of the
		// three envelope shapes in §3 — not a request (no method), not a
		// notification (has an id), not a response (no result/error).
		return nil, fmt.Errorf("jsonrpc: invalid envelope: id present but no method, result, or error")
	default:
		return nil, fmt.Errorf("jsonrpc: envelope has neither method nor id/result/error")
	}
}

// Marshal serializes msg into canonical JSON (no embedded literal newlines,
// stable field order via struct tags), satisfying invariant 2 of spec §8.
func Marshal(msg Message) ([]byte, error) {
	var env envelope
	env.JSONRPC = ProtocolVersion
	switch m := msg.(type) {
	case *Request:
		id := m.ID
		env.ID = &id
		env.Method = m.Method
		env.Params = m.Params
	case *Notification:
		env.Method = m.Method
		env.Params = m.Params
	case *Response:
		id := m.ID
		env.ID = &id
		env.Result = m.Result
		env.Error = m.Error
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message type %T", msg)
	}
	return json.Marshal(env)
}

// NewError builds a *Response carrying a synthesized error for id.
func NewError(id ID, code int64, message string, data any) *Response {
	return &Response{ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}

// IsBatch reports whether data is a JSON array, which the bridge rejects
// outright per §6.7 (no batching support).
func IsBatch(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}
