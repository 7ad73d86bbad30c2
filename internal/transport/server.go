// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transport implements C7: the HTTP server exposing the SSE
// stream, WS upgrade, HTTP POST ingress, session/filter/health control
// endpoints, and OAuth-metadata endpoints, per spec §4.7.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	bridgeauth "github.com/bridgemcp/bridge/internal/auth"
	"github.com/bridgemcp/bridge/internal/broker"
	"github.com/bridgemcp/bridge/internal/child"
	"github.com/bridgemcp/bridge/internal/contentfilter"
	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/internal/metrics"
	"github.com/bridgemcp/bridge/internal/registry"
	"github.com/bridgemcp/bridge/internal/session"
)

// MaxMessageBytes is the §6.1 default body-size limit for POST /messages.
const MaxMessageBytes = 4 << 20

// ChildState is the subset of *child.Supervisor that C7 needs for
// /health and /live, narrowed the same way broker.Child narrows it for
// C5, so tests can substitute a fake without spawning a real process.
type ChildState interface {
	State() child.State
}

// Options configures a Server.
type Options struct {
	AdvertiseURL    string // absolute externally-reachable base URL, e.g. "http://host:8080"
	Auth            bridgeauth.Config
	MaxInFlight     int           // default 128, §6.3 BRIDGE_MAX_IN_FLIGHT
	HeartbeatPeriod time.Duration // default 15s, §4.5.4
	LiveConsole     bool          // serve GET /live

	// ContentFilterStore is non-nil only when C8 content filtering is
	// enabled, backing POST /filters/config (§4.8). A nil store makes
	// that endpoint answer 404, since there is nothing to reconfigure.
	ContentFilterStore *contentfilter.ConfigStore
}

// Server is C7: it owns no session/broker state of its own, only the
// HTTP routing and transport-sink plumbing over the shared components
// passed to New.
type Server struct {
	opts     Options
	broker   *broker.Broker
	sessions *session.Store
	registry *registry.Registry
	chain    *filter.Chain
	child    ChildState
	metrics  *metrics.Registry
	logger   *slog.Logger
	authMeta bridgeauth.MetadataDocuments

	startedAt            time.Time
	inFlight             *inFlightGate
	sessionCreateLimiter *rate.Limiter
	contentFilterStore   *contentfilter.ConfigStore
	router               chi.Router
}

// New builds the HTTP routing tree. Call Handler to get the resulting
// http.Handler (e.g. for httptest or http.Server.Handler).
func New(b *broker.Broker, sessions *session.Store, reg *registry.Registry, chain *filter.Chain, sup ChildState, m *metrics.Registry, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxInFlight == 0 {
		opts.MaxInFlight = 128
	}
	if opts.HeartbeatPeriod == 0 {
		opts.HeartbeatPeriod = 15 * time.Second
	}
	s := &Server{
		opts:      opts,
		broker:    b,
		sessions:  sessions,
		registry:  reg,
		chain:     chain,
		child:     sup,
		metrics:   m,
		logger:    logger,
		authMeta:  bridgeauth.NewMetadataDocuments(opts.AdvertiseURL),
		startedAt: time.Now(),
		inFlight:  newInFlightGate(opts.MaxInFlight),
		// Explicit session creation (POST /sessions) is a throughput
		// concern, not a concurrency cap, so it is smoothed with a token
		// bucket rather than the in-flight semaphore above: 10/s steady
		// state, bursts up to 20.
		sessionCreateLimiter: rate.NewLimiter(10, 20),
		contentFilterStore:   opts.ContentFilterStore,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))
	r.Use(s.metricsMiddleware)

	// OAuth-metadata endpoints are always served unauthenticated (§4.7.2):
	// strict clients' discovery step must succeed even under
	// BRIDGE_AUTH_MODE=none.
	r.Get("/.well-known/oauth-authorization-server", s.authMeta.AuthorizationServerHandler())
	r.Get("/.well-known/oauth-protected-resource", s.authMeta.ProtectedResourceHandler())
	r.Post("/register", bridgeauth.RegisterHandler())
	r.Post("/no-registration-required", bridgeauth.RegisterHandler())
	r.Get("/no-auth-required", bridgeauth.NoAuthRequiredHandler())
	r.Post("/no-auth-required", bridgeauth.NoAuthRequiredHandler())
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP)

	gate := bridgeauth.Gate(s.opts.Auth)
	r.Group(func(r chi.Router) {
		r.Use(gate)
		r.Get("/sse", s.handleSSE)
		r.Get("/ws", s.handleWS)
		r.With(s.inFlightMiddleware).Post("/messages", s.handlePostMessage)
		r.Post("/sessions", s.handleCreateSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Get("/filters", s.handleListFilters)
		r.Get("/filters/metrics", s.handleFilterMetrics)
		r.Post("/filters/{name}", s.handleToggleFilter)
		r.Post("/filters/config", s.handleFilterConfig)
	})

	if s.opts.LiveConsole {
		r.Get("/live", s.handleLiveConsole)
	}
	return r
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(routeLabel(r), statusClass(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// inFlightGate bounds concurrent HTTP-ingress requests at max_in_flight,
// per §4.7.4 "HTTP POST ingress: capped at max_in_flight per process;
// excess returns HTTP 429". A counting semaphore is the natural shape
// for this: it is a concurrency cap, not a throughput rate (the session
// creation path uses golang.org/x/time/rate instead, see sessions.go,
// where the concern really is a rate).
type inFlightGate struct {
	slots chan struct{}
}

func newInFlightGate(max int) *inFlightGate {
	return &inFlightGate{slots: make(chan struct{}, max)}
}

func (g *inFlightGate) tryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *inFlightGate) release() { <-g.slots }

func (s *Server) inFlightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.inFlight.tryAcquire() {
			writeJSONStatus(w, http.StatusTooManyRequests, map[string]string{"error": "max_in_flight exceeded"})
			return
		}
		defer s.inFlight.release()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func clientInfoFromRequest(r *http.Request) session.ClientInfo {
	return session.ClientInfo{
		UserAgent: r.UserAgent(),
		RemoteIP:  r.RemoteAddr,
	}
}
