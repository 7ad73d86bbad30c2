// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handlePostMessage serves POST /messages?session={id} (§6.1, §4.7.1).
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "missing session query parameter"})
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageBytes+1))
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if len(body) > MaxMessageBytes {
		writeJSONStatus(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "message exceeds max_message_bytes"})
		return
	}

	// Once the session lookup above succeeds, the message is considered
	// enqueued for the child (§6.1 "202 Accepted ... once enqueued"); any
	// downstream forwarding failure (e.g. a dead child) surfaces
	// asynchronously to the session as a JSON-RPC error, not as an HTTP
	// error to this request.
	if err := s.broker.RouteFromClient(r.Context(), sessionID, body); err != nil {
		s.logger.Warn("route_from_client error", "session_id", sessionID, "error", err)
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleCreateSession serves POST /sessions (§4.7.1).
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionCreateLimiter.Allow() {
		writeJSONStatus(w, http.StatusTooManyRequests, map[string]string{"error": "session creation rate exceeded"})
		return
	}
	sess := s.sessions.Create(clientInfoFromRequest(r))
	writeJSONStatus(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

// handleDeleteSession serves DELETE /sessions/{id}, idempotent (§4.7.1).
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessions.Delete(id, "client_requested")
	w.WriteHeader(http.StatusNoContent)
}
