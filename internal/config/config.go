// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config parses the bridge's CLI flags (§6.2) and environment
// variables (§6.3) into the options the rest of the bridge's packages
// need, and loads the optional tools-catalog / filter-config files
// (§6.4, §6.5) those flags name.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bridgemcp/bridge/internal/auth"
	"github.com/bridgemcp/bridge/internal/bridgeutil"
	"github.com/bridgemcp/bridge/internal/broker"
	"github.com/bridgemcp/bridge/internal/child"
	"github.com/bridgemcp/bridge/internal/contentfilter"
)

// Config is the fully-resolved bridge configuration (§6.2, §6.3).
type Config struct {
	Port int
	Host string
	Cmd  string

	LogLevel    string
	LogLocation string
	LogPattern  string

	ToolsConfigPath  string
	FilterConfigPath string

	SessionTimeout  time.Duration
	RequestDeadline time.Duration

	Auth         auth.Config
	MaxInFlight  int
	AdvertiseURL string
}

// Parse parses args (typically os.Args[1:]) and the process environment
// into a Config, per §6.2/§6.3.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("bridge", flag.ContinueOnError)

	port := fs.Int("port", 0, "port to listen on (required)")
	host := fs.String("host", "127.0.0.1", "host/address to listen on")
	cmd := fs.String("cmd", "", "shell command that starts the wrapped MCP server (required)")
	logLevel := fs.String("log_level", "INFO", "DEBUG|INFO|WARN|ERROR")
	logLocation := fs.String("log_location", "", "directory for log output; empty means stderr")
	logPattern := fs.String("log_pattern", "", "log file naming pattern, used only when log_location is set")
	toolsConfig := fs.String("tools_config", "", "path to a tools-catalog JSON file (§6.4)")
	filterConfig := fs.String("filter_config", "", "path to a filter-config JSON/YAML file (§6.5)")
	sessionTimeout := fs.Int("session_timeout", 300, "session idle timeout in seconds")
	requestDeadline := fs.Int("request_deadline", 60, "per-request deadline in seconds")
	advertiseURL := fs.String("advertise_url", "", "externally reachable base URL, required unless host is loopback")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if *cmd == "" {
		return Config{}, fmt.Errorf("config: --cmd is required")
	}
	if *port == 0 {
		return Config{}, fmt.Errorf("config: --port is required")
	}

	cfg := Config{
		Port:             *port,
		Host:             *host,
		Cmd:              *cmd,
		LogLevel:         strings.ToUpper(*logLevel),
		LogLocation:      *logLocation,
		LogPattern:       *logPattern,
		ToolsConfigPath:  *toolsConfig,
		FilterConfigPath: *filterConfig,
		SessionTimeout:   time.Duration(*sessionTimeout) * time.Second,
		RequestDeadline:  time.Duration(*requestDeadline) * time.Second,
		AdvertiseURL:     *advertiseURL,
	}

	if cfg.AdvertiseURL == "" {
		if bridgeutil.IsLoopback(cfg.Host) {
			cfg.AdvertiseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
		} else {
			return Config{}, fmt.Errorf("config: --advertise_url is required when --host %q is not loopback", cfg.Host)
		}
	}

	authMode, err := auth.ParseMode(os.Getenv("BRIDGE_AUTH_MODE"))
	if err != nil {
		return Config{}, err
	}
	cfg.Auth = auth.Config{Mode: authMode, Secret: os.Getenv("BRIDGE_AUTH_SECRET")}

	cfg.MaxInFlight = 128
	if v := os.Getenv("BRIDGE_MAX_IN_FLIGHT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: BRIDGE_MAX_IN_FLIGHT must be an integer: %w", err)
		}
		cfg.MaxInFlight = n
	}

	return cfg, nil
}

// ChildConfig builds the child.Config that launches the wrapped MCP
// server via the shell, since §6.2 specifies --cmd as a single
// "<shell-command>" string rather than a pre-split argv.
func (c Config) ChildConfig() child.Config {
	return child.Config{
		Command: "/bin/sh",
		Args:    []string{"-c", c.Cmd},
	}
}

// LoadCatalog loads the tools-catalog file named by --tools_config, or
// an empty catalog if none was given (§6.4: "If absent, the catalog
// starts empty and is populated lazily from the child's own initialize
// response").
func (c Config) LoadCatalog() (*broker.Catalog, error) {
	if c.ToolsConfigPath == "" {
		return broker.NewCatalog(), nil
	}
	return broker.LoadCatalogFile(c.ToolsConfigPath)
}

// LoadFilterConfig loads the content-filter configuration named by
// --filter_config, or contentfilter's documented defaults if none was
// given.
func (c Config) LoadFilterConfig() (contentfilter.Config, error) {
	if c.FilterConfigPath == "" {
		return contentfilter.DefaultConfig(), nil
	}
	return contentfilter.Load(c.FilterConfigPath)
}
