// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package framing

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/bridgemcp/bridge/jsonrpc"
)

func TestReadOneBasic(t *testing.T) {
	r := strings.NewReader("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"initialize\"}\n")
	c := NewCodec(r, io.Discard, 0)
	msg, err := c.ReadOne()
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok || req.Method != "initialize" {
		t.Fatalf("got %#v, want initialize request", msg)
	}
}

func TestReadOneTolerateCRLF(t *testing.T) {
	r := strings.NewReader("{\"jsonrpc\":\"2.0\",\"method\":\"notifications/ping\"}\r\n")
	c := NewCodec(r, io.Discard, 0)
	msg, err := c.ReadOne()
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if _, ok := msg.(*jsonrpc.Notification); !ok {
		t.Fatalf("got %#v, want notification", msg)
	}
}

func TestReadOneFrameTooLarge(t *testing.T) {
	big := `{"jsonrpc":"2.0","method":"x","params":"` + strings.Repeat("a", 100) + `"}` + "\n"
	r := strings.NewReader(big)
	c := NewCodec(r, io.Discard, 32)
	_, err := c.ReadOne()
	if err != FrameTooLarge {
		t.Fatalf("got %v, want FrameTooLarge", err)
	}
}

func TestReadOneEOF(t *testing.T) {
	c := NewCodec(strings.NewReader(""), io.Discard, 0)
	_, err := c.ReadOne()
	if err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestWriteOneCanonicalAndContiguous(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(strings.NewReader(""), &buf, 0)
	if err := c.WriteOne(&jsonrpc.Request{ID: jsonrpc.IntID(1), Method: "tools/list"}); err != nil {
		t.Fatalf("WriteOne: %v", err)
	}
	got := buf.String()
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("expected trailing newline, got %q", got)
	}
	if strings.Count(got, "\n") != 1 {
		t.Fatalf("expected exactly one newline, got %q", got)
	}
}
