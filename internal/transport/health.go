// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"net/http"
	"time"

	"github.com/bridgemcp/bridge/internal/child"
)

type contentFilteringStatus struct {
	Enabled bool     `json:"enabled"`
	Filters []string `json:"filters"`
}

type healthResponse struct {
	Status           string                 `json:"status"`
	ChildState       string                 `json:"child_state"`
	SessionCount     int                    `json:"session_count"`
	PendingRequests  int                    `json:"pending_requests"`
	FilterCount      int                    `json:"filter_count"`
	UptimeSeconds    float64                `json:"uptime_s"`
	ContentFiltering contentFilteringStatus `json:"content_filtering"`
}

// handleHealth serves GET /health (§6.1, §4.9).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.child.State()

	status := "ok"
	switch st {
	case child.Degraded:
		status = "degraded"
	case child.Dead, child.Terminal:
		status = "dead"
	}

	statuses := s.chain.List()
	var enabledNames []string
	for _, fs := range statuses {
		if fs.Enabled {
			enabledNames = append(enabledNames, fs.Name)
		}
	}

	resp := healthResponse{
		Status:          status,
		ChildState:      st.String(),
		SessionCount:    s.sessions.Len(),
		PendingRequests: s.registry.Len(),
		FilterCount:     len(statuses),
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
		ContentFiltering: contentFilteringStatus{
			Enabled: len(enabledNames) > 0,
			Filters: enabledNames,
		},
	}

	// /health itself is always reachable and always 200, even when the
	// child is dead (§4.9: "HTTP ingress returns 503 except for /health
	// and discovery"); the degraded/dead state is carried in the body.
	writeJSONStatus(w, http.StatusOK, resp)
}
