// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bridgemcp/bridge/internal/session"
	"github.com/bridgemcp/bridge/jsonrpc"
)

// sseSink implements session.Sink over a single GET /sse connection
// (§4.7.3). Deliver and Close are called from the broker/session's own
// goroutine under the session's lock, so they hand off to the
// connection's own writer goroutine via a channel rather than writing
// to the ResponseWriter directly (only one goroutine may write to an
// http.ResponseWriter's body at a time).
type sseSink struct {
	out    chan jsonrpc.Message
	closed chan string
}

func newSSESink() *sseSink {
	return &sseSink{
		out:    make(chan jsonrpc.Message, 64),
		closed: make(chan string, 1),
	}
}

func (s *sseSink) Deliver(msg jsonrpc.Message) error {
	select {
	case s.out <- msg:
		return nil
	default:
		// The sink's own buffer is full; the session queue is the
		// backpressure authority (§4.7.4), so drop here rather than block.
		return fmt.Errorf("transport: sse sink buffer full")
	}
}

func (s *sseSink) Close(reason string) {
	select {
	case s.closed <- reason:
	default:
	}
}

// handleSSE serves GET /sse: auto-creates a session if none is named by
// the Mcp-Session-Id header or session query parameter, writes the
// initial `event: endpoint` handshake, then streams queued messages,
// heartbeats, and a final `event: end` on close (§4.7.1, §4.7.3).
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session")
	}

	var sess *session.Session
	if sessionID != "" {
		var err error
		sess, err = s.sessions.Get(sessionID)
		if err != nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	} else {
		sess = s.sessions.Create(clientInfoFromRequest(r))
	}
	sess.Touch()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Mcp-Session-Id", sess.ID)
	w.WriteHeader(http.StatusOK)

	postURL := fmt.Sprintf("%s/messages?session=%s", s.opts.AdvertiseURL, sess.ID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", postURL)
	flusher.Flush()

	sink := newSSESink()
	sess.AttachSink(sink)
	defer sess.DetachSink(sink)

	heartbeat := time.NewTicker(s.opts.HeartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case reason := <-sink.closed:
			fmt.Fprintf(w, "event: end\ndata: %s\n\n", reason)
			flusher.Flush()
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()
		case msg := <-sink.out:
			data, err := jsonrpc.Marshal(msg)
			if err != nil {
				s.logger.Warn("sse marshal error", "session_id", sess.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
