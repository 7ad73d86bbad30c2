// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package contentfilter implements C8: the optional content-filter
// middleware layered over the core filter chain — a domain/keyword
// blacklist, an HTML sanitizer, a PII redactor, and a response-size
// manager, per spec §4.8. All four share one hot-reloadable, validated
// configuration loaded from JSON (or YAML, as sugar) and swapped in
// atomically so in-flight filter calls finish under the config that was
// live when they started.
package contentfilter

import (
	"fmt"
	"os"
	"regexp"

	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Config is the decoded form of §6.5's filter-config file.
type Config struct {
	BlockedDomains  []string `json:"blocked_domains" yaml:"blocked_domains"`
	BlockedKeywords []string `json:"blocked_keywords" yaml:"blocked_keywords"`
	BlockedPatterns []string `json:"blocked_patterns" yaml:"blocked_patterns"`

	RedactEmails      bool `json:"redact_emails" yaml:"redact_emails"`
	RedactPhones      bool `json:"redact_phones" yaml:"redact_phones"`
	RedactSSNs        bool `json:"redact_ssns" yaml:"redact_ssns"`
	RedactCreditCards bool `json:"redact_credit_cards" yaml:"redact_credit_cards"`

	RemoveScripts  bool `json:"remove_scripts" yaml:"remove_scripts"`
	RemoveTrackers bool `json:"remove_trackers" yaml:"remove_trackers"`

	MaxResponseLength   int `json:"max_response_length" yaml:"max_response_length"`
	SummarizeThreshold  int `json:"summarize_threshold" yaml:"summarize_threshold"`
	HardTruncate        int `json:"hard_truncate" yaml:"hard_truncate"`
}

// DefaultConfig matches the defaults implied by §6.5 when no file is
// supplied: redaction on, sanitization on, blacklist empty, generous
// size thresholds.
func DefaultConfig() Config {
	return Config{
		RedactEmails:       true,
		RedactPhones:       true,
		RedactSSNs:         true,
		RedactCreditCards:  true,
		RemoveScripts:      true,
		RemoveTrackers:     true,
		MaxResponseLength:  15000,
		SummarizeThreshold: 5000,
		HardTruncate:       25000,
	}
}

// Load reads and validates a filter-config file. The format (JSON or
// YAML) is inferred from the extension; JSON is canonical per §6.4/§6.5,
// YAML is accepted as sugar and decoded into the same struct.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("contentfilter: read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if isYAMLPath(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("contentfilter: parse yaml config %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("contentfilter: parse json config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("contentfilter: invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func isYAMLPath(path string) bool {
	n := len(path)
	return n >= 5 && (path[n-5:] == ".yaml") || n >= 4 && path[n-4:] == ".yml"
}

// Validate checks structural soundness: every configured regex must
// compile, and size thresholds must be ordered sensibly. Invalid config
// leaves the caller's existing config unchanged (§4.8 "Config reload").
func (c Config) Validate() error {
	for _, p := range c.BlockedPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("blocked_patterns: invalid regex %q: %w", p, err)
		}
	}
	if c.SummarizeThreshold > 0 && c.HardTruncate > 0 && c.SummarizeThreshold > c.HardTruncate {
		return fmt.Errorf("summarize_threshold (%d) must not exceed hard_truncate (%d)", c.SummarizeThreshold, c.HardTruncate)
	}
	return nil
}
