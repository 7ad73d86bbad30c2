// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import "sync/atomic"

// ConfigStore holds the live Config behind an atomic pointer so that
// Reload is a single atomic swap: in-flight filter calls keep running
// against the Config snapshot they loaded at entry, never a half-applied
// update (§4.8 "Config reload is atomic").
type ConfigStore struct {
	v atomic.Pointer[Config]
}

// NewConfigStore returns a ConfigStore seeded with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	s := &ConfigStore{}
	s.v.Store(&cfg)
	return s
}

// Current returns the live config snapshot.
func (s *ConfigStore) Current() Config {
	return *s.v.Load()
}

// Reload validates cfg and, only if valid, atomically replaces the live
// config. On validation failure the existing config is left unchanged
// and the error is returned for the caller to turn into an HTTP 400.
func (s *ConfigStore) Reload(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.v.Store(&cfg)
	return nil
}
