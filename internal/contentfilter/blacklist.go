// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/jsonrpc"
)

// Blacklist is the first filter layered into C6 when content filtering is
// enabled (§4.8 step 1): blocks messages whose content matches a
// configured domain, keyword, or regex.
type Blacklist struct {
	store *ConfigStore

	mu      sync.Mutex
	counts  map[string]int64 // rule -> match count, e.g. "domain:evil.example"
	compile map[string]*regexp.Regexp
}

// NewBlacklist returns a Blacklist filter reading its rules from store.
func NewBlacklist(store *ConfigStore) *Blacklist {
	return &Blacklist{store: store, counts: make(map[string]int64)}
}

func (f *Blacklist) Name() string { return "blacklist" }

// Counts returns a snapshot of per-rule match counters, for
// GET /filters/metrics.
func (f *Blacklist) Counts() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}

func (f *Blacklist) bump(rule string) {
	f.mu.Lock()
	f.counts[rule]++
	f.mu.Unlock()
}

func (f *Blacklist) Apply(_ filter.Direction, _ string, msg jsonrpc.Message) (filter.Result, error) {
	cfg := f.store.Current()
	if len(cfg.BlockedDomains) == 0 && len(cfg.BlockedKeywords) == 0 && len(cfg.BlockedPatterns) == 0 {
		return filter.PassResult(), nil
	}

	for _, s := range collectMessageStrings(msg) {
		for _, domain := range cfg.BlockedDomains {
			if domain != "" && strings.Contains(s, domain) {
				rule := "domain:" + domain
				f.bump(rule)
				return f.block(rule), nil
			}
		}
		lower := strings.ToLower(s)
		for _, kw := range cfg.BlockedKeywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				rule := "keyword:" + kw
				f.bump(rule)
				return f.block(rule), nil
			}
		}
		for _, pat := range cfg.BlockedPatterns {
			re, err := f.compiled(pat)
			if err != nil {
				continue // already validated at load time; defensive only
			}
			if re.MatchString(s) {
				rule := "pattern:" + pat
				f.bump(rule)
				return f.block(rule), nil
			}
		}
	}
	return filter.PassResult(), nil
}

func (f *Blacklist) compiled(pattern string) (*regexp.Regexp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.compile == nil {
		f.compile = make(map[string]*regexp.Regexp)
	}
	if re, ok := f.compile[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	f.compile[pattern] = re
	return re, nil
}

// block builds the -32001 "blocked by policy" result addressed to the
// originator (§7 error taxonomy, §8 Scenario D).
func (f *Blacklist) block(rule string) filter.Result {
	return filter.Result{
		Kind: filter.Block,
		BlockErr: &jsonrpc.Error{
			Code:    jsonrpc.CodeBlockedByPolicy,
			Message: "blocked by policy",
			Data:    map[string]any{"reason": rule},
		},
		Reason: fmt.Sprintf("blacklist rule %s", rule),
	}
}
