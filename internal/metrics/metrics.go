// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the bridge's counters and gauges (§4.9, §5
// "Process-wide state: Metrics counters (atomic)") as a Prometheus
// registry served at GET /metrics (§4.7.1).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a dedicated prometheus.Registry (not the global
// default registerer) so the bridge's /metrics output is exactly the
// bridge's own series, nothing pulled in from an imported library's
// init-time registration.
type Registry struct {
	reg *prometheus.Registry

	Sessions         prometheus.Gauge
	QueueDepth       prometheus.Gauge
	PendingRequests  prometheus.Gauge
	FilterActions    *prometheus.CounterVec
	ChildRestarts    prometheus.Counter
	ChildState       *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
	DroppedMessages  prometheus.Counter
	BlockedMessages  prometheus.Counter
	UnresolvedUpstream prometheus.Counter
}

// New builds and registers every bridge metric against a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_sessions",
			Help: "Number of live client sessions.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_outbound_queue_depth_total",
			Help: "Sum of outbound queue depth across all live sessions.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_pending_requests",
			Help: "Number of requests currently awaiting an upstream response.",
		}),
		FilterActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_filter_actions_total",
			Help: "Count of non-Pass filter outcomes by filter name and action.",
		}, []string{"filter", "action"}),
		ChildRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_child_restarts_total",
			Help: "Number of times the wrapped child process has been restarted.",
		}),
		ChildState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_child_state",
			Help: "1 for the child's current health state, 0 for all others.",
		}, []string{"state"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Count of HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_dropped_messages_total",
			Help: "Messages dropped by the filter chain.",
		}),
		BlockedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_blocked_messages_total",
			Help: "Messages blocked by the filter chain.",
		}),
		UnresolvedUpstream: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_unresolved_upstream_responses_total",
			Help: "Upstream responses with no matching pending-request entry.",
		}),
	}
	reg.MustRegister(
		m.Sessions, m.QueueDepth, m.PendingRequests, m.FilterActions,
		m.ChildRestarts, m.ChildState, m.HTTPRequests, m.DroppedMessages,
		m.BlockedMessages, m.UnresolvedUpstream,
	)
	return m
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// SetChildState records st as the only active health state: every other
// label is zeroed first so the gauge vector always has exactly one 1.
func (m *Registry) SetChildState(states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1
		}
		m.ChildState.WithLabelValues(s).Set(v)
	}
}
