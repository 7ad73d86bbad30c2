// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"testing"
	"time"

	"github.com/bridgemcp/bridge/internal/auth"
)

func TestParseRequiredFlags(t *testing.T) {
	for _, tt := range []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"missing both", nil, true},
		{"missing cmd", []string{"--port", "8080"}, true},
		{"missing port", []string{"--cmd", "echo hi"}, true},
		{"minimal ok", []string{"--port", "8080", "--cmd", "echo hi"}, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%v) err = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--port", "8080", "--cmd", "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.SessionTimeout != 300*time.Second {
		t.Errorf("SessionTimeout = %v, want 300s", cfg.SessionTimeout)
	}
	if cfg.RequestDeadline != 60*time.Second {
		t.Errorf("RequestDeadline = %v, want 60s", cfg.RequestDeadline)
	}
	if cfg.MaxInFlight != 128 {
		t.Errorf("MaxInFlight = %d, want 128", cfg.MaxInFlight)
	}
	if cfg.Auth.Mode != auth.ModeNone {
		t.Errorf("Auth.Mode = %q, want none", cfg.Auth.Mode)
	}
	if cfg.AdvertiseURL != "http://127.0.0.1:8080" {
		t.Errorf("AdvertiseURL = %q, want derived loopback URL", cfg.AdvertiseURL)
	}
}

func TestParseNonLoopbackHostRequiresAdvertiseURL(t *testing.T) {
	_, err := Parse([]string{"--port", "8080", "--cmd", "echo hi", "--host", "10.0.0.5"})
	if err == nil {
		t.Fatal("expected an error when host is non-loopback and advertise_url is unset")
	}

	cfg, err := Parse([]string{"--port", "8080", "--cmd", "echo hi", "--host", "10.0.0.5", "--advertise_url", "https://bridge.example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AdvertiseURL != "https://bridge.example.com" {
		t.Errorf("AdvertiseURL = %q, want explicit flag value", cfg.AdvertiseURL)
	}
}

func TestParseEnvVars(t *testing.T) {
	t.Setenv("BRIDGE_AUTH_MODE", "apikey")
	t.Setenv("BRIDGE_AUTH_SECRET", "s3cret")
	t.Setenv("BRIDGE_MAX_IN_FLIGHT", "64")

	cfg, err := Parse([]string{"--port", "8080", "--cmd", "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.Mode != auth.ModeAPIKey || cfg.Auth.Secret != "s3cret" {
		t.Errorf("Auth = %+v, want apikey/s3cret", cfg.Auth)
	}
	if cfg.MaxInFlight != 64 {
		t.Errorf("MaxInFlight = %d, want 64", cfg.MaxInFlight)
	}
}

func TestParseBadEnvVars(t *testing.T) {
	t.Setenv("BRIDGE_AUTH_MODE", "bogus")
	if _, err := Parse([]string{"--port", "8080", "--cmd", "echo hi"}); err == nil {
		t.Fatal("expected error for unknown BRIDGE_AUTH_MODE")
	}
	os.Unsetenv("BRIDGE_AUTH_MODE")

	t.Setenv("BRIDGE_MAX_IN_FLIGHT", "not-a-number")
	if _, err := Parse([]string{"--port", "8080", "--cmd", "echo hi"}); err == nil {
		t.Fatal("expected error for non-integer BRIDGE_MAX_IN_FLIGHT")
	}
}

func TestChildConfigUsesShell(t *testing.T) {
	cfg, err := Parse([]string{"--port", "8080", "--cmd", "mcp-server --flag"})
	if err != nil {
		t.Fatal(err)
	}
	cc := cfg.ChildConfig()
	if cc.Command != "/bin/sh" || len(cc.Args) != 2 || cc.Args[0] != "-c" || cc.Args[1] != "mcp-server --flag" {
		t.Errorf("ChildConfig = %+v, want sh -c wrapping the raw command", cc)
	}
}

func TestLoadCatalogDefaultsToEmpty(t *testing.T) {
	cfg, err := Parse([]string{"--port", "8080", "--cmd", "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := cfg.LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Tools()) != 0 {
		t.Errorf("expected an empty catalog, got %d tools", len(cat.Tools()))
	}
}

func TestLoadFilterConfigDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--port", "8080", "--cmd", "echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	fc, err := cfg.LoadFilterConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !fc.RedactEmails {
		t.Error("expected default filter config to redact emails")
	}
}
