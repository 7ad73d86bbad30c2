// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command bridge runs the MCP protocol bridge: it spawns a wrapped
// stdio MCP server as a child process and exposes it to HTTP clients
// over SSE, WebSocket, and plain POST ingress, per spec §4 and §6.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bridgemcp/bridge/internal/broker"
	"github.com/bridgemcp/bridge/internal/child"
	"github.com/bridgemcp/bridge/internal/config"
	"github.com/bridgemcp/bridge/internal/contentfilter"
	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/internal/metrics"
	"github.com/bridgemcp/bridge/internal/registry"
	"github.com/bridgemcp/bridge/internal/session"
	"github.com/bridgemcp/bridge/internal/transport"
	"github.com/bridgemcp/bridge/jsonrpc"
)

// childGraceShutdown mirrors child.Config's own default so the final
// SIGTERM-then-wait step (§4.2) runs even though ChildConfig() leaves
// GraceShutdown unset for the supervisor to default internally.
const childGraceShutdown = 10 * time.Second

// Exit codes, §6.2.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitChildStartErr = 2
	exitServerErr     = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		slog.Error("config error", "error", err)
		return exitConfigError
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	catalog, err := cfg.LoadCatalog()
	if err != nil {
		logger.Error("failed to load tools catalog", "path", cfg.ToolsConfigPath, "error", err)
		return exitConfigError
	}
	filterCfg, err := cfg.LoadFilterConfig()
	if err != nil {
		logger.Error("failed to load filter config", "path", cfg.FilterConfigPath, "error", err)
		return exitConfigError
	}

	m := metrics.New()
	reg := registry.New()
	sessions := session.NewStore(session.Options{SessionTimeout: cfg.SessionTimeout})

	chain, filterStore := buildFilterChain(filterCfg, logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var b *broker.Broker
	sup := child.New(cfg.ChildConfig(), logger, func(reason string) {
		m.ChildRestarts.Inc()
		b.FailAllPending(reason)
	})
	b = broker.New(sup, reg, sessions, chain, catalog, logger, m, cfg.RequestDeadline)

	if err := sup.Start(ctx); err != nil {
		logger.Error("child failed to start", "error", err)
		return exitChildStartErr
	}
	go pumpUpstream(b, sup)
	go sampleMetrics(ctx, m, sup, sessions, reg)
	go sweepLoop(ctx, b, sessions)

	srv := transport.New(b, sessions, reg, chain, sup, m, logger, transport.Options{
		AdvertiseURL:       cfg.AdvertiseURL,
		Auth:               cfg.Auth,
		MaxInFlight:        cfg.MaxInFlight,
		ContentFilterStore: filterStore,
		LiveConsole:        cfg.LogLevel == "DEBUG",
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: srv.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("bridge listening", "addr", httpSrv.Addr, "advertise_url", cfg.AdvertiseURL)
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			return exitServerErr
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown did not complete cleanly", "error", err)
	}
	b.FailAllPending("bridge shutting down")
	if err := sup.Stop(childGraceShutdown); err != nil {
		logger.Warn("child shutdown did not complete cleanly", "error", err)
	}
	return exitOK
}

// newLogger builds the bridge's structured logger per §6.2's
// log_level/log_location/log_pattern flags, following the teacher's
// examples/logging-middleware convention of a JSON handler with an
// RFC3339 timestamp.
func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	out := os.Stderr
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("timestamp", a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	if cfg.LogLocation == "" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}

	name := cfg.LogPattern
	if name == "" {
		name = "bridge.log"
	}
	f, err := os.OpenFile(filepath.Join(cfg.LogLocation, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("failed to open log file, falling back to stderr", "error", err)
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(f, opts))
}

// filterActionLabel maps a non-Pass ResultKind to the Prometheus label
// value used by bridge_filter_actions_total.
func filterActionLabel(kind filter.ResultKind) string {
	switch kind {
	case filter.Transform:
		return "transform"
	case filter.Drop:
		return "drop"
	case filter.Block:
		return "block"
	default:
		return "unknown"
	}
}

// buildFilterChain assembles C6 with the two always-present built-ins
// and, when the loaded config enables it, the C8 content-filter stack
// layered in front of them (§4.8 "Blacklist -> Sanitizer -> PII
// Redactor -> Size Manager, then the base chain").
func buildFilterChain(cfg contentfilter.Config, logger *slog.Logger, m *metrics.Registry) (*filter.Chain, *contentfilter.ConfigStore) {
	chain := filter.NewChain()
	store := contentfilter.NewConfigStore(cfg)
	audit := contentfilter.NewAuditLog(logger, false)
	chain.SetAuditHook(func(filterName, sessionID string, kind filter.ResultKind, reason string, before, after jsonrpc.Message) {
		originalBytes, _ := jsonrpc.Marshal(before)
		filteredBytes, _ := jsonrpc.Marshal(after)
		audit.Record(sessionID, filterName, kind, reason, originalBytes, filteredBytes)
		m.FilterActions.WithLabelValues(filterName, filterActionLabel(kind)).Inc()
	})

	chain.Register(contentfilter.NewBlacklist(store), filter.MaskBoth, true)
	chain.Register(contentfilter.NewHTMLSanitizer(store), filter.MaskBoth, true)
	chain.Register(contentfilter.NewPIIRedactor(store), filter.MaskBoth, true)
	// Size management only makes sense on responses flowing back to the
	// client, not on requests the client itself authored.
	chain.Register(contentfilter.NewSizeManager(store), filter.MaskInbound, true)

	redact, err := filter.NewRedactSecrets(nil)
	if err != nil {
		logger.Warn("failed to build redact_secrets filter", "error", err)
	} else {
		chain.Register(redact, filter.MaskBoth, true)
	}
	chain.Register(filter.NewAddBridgeMeta(""), filter.MaskOutbound, false)

	return chain, store
}

func pumpUpstream(b *broker.Broker, sup *child.Supervisor) {
	for msg := range sup.Messages() {
		b.RouteFromUpstream(msg)
	}
}

func sweepLoop(ctx context.Context, b *broker.Broker, sessions *session.Store) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.SweepExpired()
			sessions.ReapIdle()
		}
	}
}

func sampleMetrics(ctx context.Context, m *metrics.Registry, sup *child.Supervisor, sessions *session.Store, reg *registry.Registry) {
	states := []string{"starting", "ready", "degraded", "dead", "terminal"}
	t := time.NewTicker(2 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sessions.Set(float64(sessions.Len()))
			m.PendingRequests.Set(float64(reg.Len()))
			m.SetChildState(states, sup.State().String())
		}
	}
}
