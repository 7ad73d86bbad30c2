// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bridgemcp/bridge/internal/session"
	"github.com/bridgemcp/bridge/jsonrpc"
)

var upgrader = websocket.Upgrader{
	// Cross-origin bridge clients are expected; CORS-equivalent origin
	// checking for WS is left permissive, matching the cors.Handler
	// AllowedOrigins: []string{"*"} policy applied to the rest of C7.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSink implements session.Sink over a single GET /ws connection
// (§4.7.1, §4.7.4). Writes are serialized through a single goroutine
// since gorilla/websocket connections are not safe for concurrent
// writers.
type wsSink struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (s *wsSink) Deliver(msg jsonrpc.Message) error {
	data, err := jsonrpc.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSink) Close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	s.conn.Close()
}

// handleWS serves GET /ws?session={id}: upgrades to a WebSocket and
// relays frames bidirectionally between the connection and the named
// session, with a 15s ping / two-miss disconnect policy (§4.5.4,
// §4.7.1).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session query parameter", http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	sess.Touch()

	sink := &wsSink{conn: conn}
	sess.AttachSink(sink)
	defer sess.DetachSink(sink)
	defer conn.Close()

	missedPongs := 0
	conn.SetPongHandler(func(string) error {
		missedPongs = 0
		conn.SetReadDeadline(time.Now().Add(2 * s.opts.HeartbeatPeriod))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(2 * s.opts.HeartbeatPeriod))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			sess.Touch()
			if err := s.broker.RouteFromClient(r.Context(), sessionID, data); err != nil {
				s.logger.Warn("ws route error", "session_id", sessionID, "error", err)
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			missedPongs++
			if missedPongs > 2 {
				s.logger.Warn("ws ping timeout, disconnecting", "session_id", sessionID)
				return
			}
			sink.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			sink.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

var _ session.Sink = (*wsSink)(nil)
