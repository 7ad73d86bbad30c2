// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bridgemcp/bridge/internal/contentfilter"
)

type filterStatus struct {
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	DirectionMask int    `json:"direction_mask"`
}

// handleListFilters serves GET /filters (§4.6).
func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	statuses := s.chain.List()
	out := make([]filterStatus, 0, len(statuses))
	for _, fs := range statuses {
		out = append(out, filterStatus{Name: fs.Name, Enabled: fs.Enabled, DirectionMask: int(fs.Mask)})
	}
	writeJSON(w, out)
}

// filterMetricsLabel names the second-level JSON key each counter-bearing
// filter's counts are nested under, so GET /filters/metrics answers
// spec.md's "pii_redactor.redactions.email == 1" (§8 Scenario C) exactly.
var filterMetricsLabel = map[string]string{
	"pii_redactor": "redactions",
	"blacklist":    "matches",
}

// handleFilterMetrics serves GET /filters/metrics: per-filter, per-category
// counters for every registered filter that tracks them (§8 Scenario C).
// Filters with no counters (e.g. html_sanitizer) are simply absent.
func (s *Server) handleFilterMetrics(w http.ResponseWriter, r *http.Request) {
	raw := s.chain.Counts()
	out := make(map[string]map[string]map[string]int64, len(raw))
	for name, counts := range raw {
		label := filterMetricsLabel[name]
		if label == "" {
			label = "counts"
		}
		out[name] = map[string]map[string]int64{label: counts}
	}
	writeJSON(w, out)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// handleToggleFilter serves POST /filters/{name} with body {"enabled":
// bool} (§4.6).
func (s *Server) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !s.chain.SetEnabled(name, req.Enabled) {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "unknown filter"})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// handleFilterConfig serves POST /filters/config: replaces the
// content-filter middleware's opaque config atomically, rejecting
// invalid configs with 400 and leaving the existing config unchanged
// (§4.8 "Config reload is atomic", §4.9 "Filter config invalid -> HTTP
// 400; existing config unchanged").
func (s *Server) handleFilterConfig(w http.ResponseWriter, r *http.Request) {
	if s.contentFilterStore == nil {
		writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "content filtering is not enabled"})
		return
	}
	var cfg contentfilter.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if err := s.contentFilterStore.Reload(cfg); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
