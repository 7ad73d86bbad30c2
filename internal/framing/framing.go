// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package framing implements C1: the newline-delimited JSON wire format
// used on the child process's stdin/stdout, per spec §4.1.
package framing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/bridgemcp/bridge/jsonrpc"
)

// DefaultMaxLineBytes is the default cap on a single framed line (§4.1).
const DefaultMaxLineBytes = 4 << 20 // 4 MiB

// FrameTooLarge is returned by Read when a line exceeds the configured cap.
var FrameTooLarge = errors.New("framing: frame exceeds maximum line size")

// ErrNotUTF8 is returned when a line is not valid UTF-8.
var ErrNotUTF8 = errors.New("framing: non-UTF-8 bytes on stream")

// Codec reads and writes newline-delimited JSON-RPC messages over a byte
// stream, per §4.1. A Codec is safe for one concurrent reader and one
// concurrent writer (matching the supervisor's single stdin-writer /
// single stdout-reader ownership model in §5).
type Codec struct {
	r          *bufio.Reader
	w          io.Writer
	maxLine    int
	writeMu    sync.Mutex
}

// NewCodec returns a Codec reading from r and writing to w. maxLineBytes
// caps a single buffered line; 0 selects DefaultMaxLineBytes.
func NewCodec(r io.Reader, w io.Writer, maxLineBytes int) *Codec {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Codec{
		r:       bufio.NewReaderSize(r, 64*1024),
		w:       w,
		maxLine: maxLineBytes,
	}
}

// ReadOne reads one complete line, parses it, and returns the message.
// It tolerates a trailing CR (CRLF line endings) per §4.1. io.EOF is
// returned verbatim when the stream closes cleanly between lines.
func (c *Codec) ReadOne() (jsonrpc.Message, error) {
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(line) {
		return nil, ErrNotUTF8
	}
	msg, err := jsonrpc.ClassifyStrict(line)
	if err != nil {
		return nil, fmt.Errorf("framing: decode error: %w", err)
	}
	return msg, nil
}

// readLine reads a single LF-terminated line, buffering across multiple
// underlying reads, and stripping a trailing CR.
func (c *Codec) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
		}
		if len(buf) > c.maxLine {
			// Drain the rest of the oversized line so the stream stays in sync.
			for isPrefix && err == nil {
				_, isPrefix, err = c.r.ReadLine()
			}
			return nil, FrameTooLarge
		}
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return buf, nil
			}
			return nil, err
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

// WriteOne canonicalizes and writes msg as a single LF-terminated line, in
// one contiguous Write call, satisfying invariant 2 of spec §8 (no
// interleaving between concurrent writers sharing a Codec).
func (c *Codec) WriteOne(msg jsonrpc.Message) error {
	data, err := jsonrpc.Marshal(msg)
	if err != nil {
		return fmt.Errorf("framing: encode error: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.w.Write(data)
	return err
}
