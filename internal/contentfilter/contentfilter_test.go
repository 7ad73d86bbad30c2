// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/jsonrpc"
)

func TestConfigValidateRejectsBadRegex(t *testing.T) {
	cfg := Config{BlockedPatterns: []string{"("}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestConfigValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := Config{SummarizeThreshold: 100, HardTruncate: 50}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when summarize_threshold > hard_truncate")
	}
}

func TestConfigStoreReloadRejectsInvalid(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	before := store.Current()
	err := store.Reload(Config{BlockedPatterns: []string{"("}})
	if err == nil {
		t.Fatal("expected Reload to reject invalid config")
	}
	if store.Current() != before {
		t.Fatal("Reload must leave existing config unchanged on validation failure")
	}
}

func TestBlacklistBlocksConfiguredDomain(t *testing.T) {
	store := NewConfigStore(Config{BlockedDomains: []string{"evil.example"}})
	bl := NewBlacklist(store)

	req := &jsonrpc.Request{
		ID:     jsonrpc.IntID(7),
		Method: "tools/call",
		Params: json.RawMessage(`{"name":"scrape","arguments":{"url":"https://evil.example/x"}}`),
	}
	res, err := bl.Apply(filter.Outbound, "s1", req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Block {
		t.Fatalf("Kind = %v, want Block", res.Kind)
	}
	if res.BlockErr == nil || res.BlockErr.Code != jsonrpc.CodeBlockedByPolicy {
		t.Fatalf("BlockErr = %+v, want code %d", res.BlockErr, jsonrpc.CodeBlockedByPolicy)
	}
	data, ok := res.BlockErr.Data.(map[string]any)
	if !ok || data["reason"] != "domain:evil.example" {
		t.Fatalf("BlockErr.Data = %v, want reason domain:evil.example", res.BlockErr.Data)
	}
	if bl.Counts()["domain:evil.example"] != 1 {
		t.Fatalf("Counts() = %v, want domain:evil.example == 1", bl.Counts())
	}
}

func TestBlacklistPassesCleanMessage(t *testing.T) {
	store := NewConfigStore(Config{BlockedDomains: []string{"evil.example"}})
	bl := NewBlacklist(store)
	req := &jsonrpc.Request{
		ID:     jsonrpc.IntID(1),
		Method: "tools/call",
		Params: json.RawMessage(`{"url":"https://example.com"}`),
	}
	res, err := bl.Apply(filter.Outbound, "s1", req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Pass {
		t.Fatalf("Kind = %v, want Pass", res.Kind)
	}
}

func TestBlacklistKeywordAndPattern(t *testing.T) {
	store := NewConfigStore(Config{BlockedKeywords: []string{"forbidden"}, BlockedPatterns: []string{`\d{4}-secret`}})
	bl := NewBlacklist(store)

	kwReq := &jsonrpc.Request{ID: jsonrpc.IntID(1), Method: "m", Params: json.RawMessage(`{"x":"this is Forbidden content"}`)}
	if res, err := bl.Apply(filter.Outbound, "s1", kwReq); err != nil || res.Kind != filter.Block {
		t.Fatalf("keyword match: res=%+v err=%v", res, err)
	}

	patReq := &jsonrpc.Request{ID: jsonrpc.IntID(2), Method: "m", Params: json.RawMessage(`{"x":"code 1234-secret here"}`)}
	if res, err := bl.Apply(filter.Outbound, "s1", patReq); err != nil || res.Kind != filter.Block {
		t.Fatalf("pattern match: res=%+v err=%v", res, err)
	}
}

func TestHTMLSanitizerStripsScriptAndEventHandlers(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	san := NewHTMLSanitizer(store)

	resp := &jsonrpc.Response{
		ID:     jsonrpc.IntID(1),
		Result: json.RawMessage(`{"body":"<div onclick=\"evil()\">hi<script>steal()</script><a href=\"javascript:evil()\">x</a></div>"}`),
	}
	res, err := san.Apply(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Transform {
		t.Fatalf("Kind = %v, want Transform", res.Kind)
	}
	out := res.Message.(*jsonrpc.Response)
	body := string(out.Result)
	for _, bad := range []string{"<script>", "onclick=", "javascript:"} {
		if strings.Contains(body, bad) {
			t.Errorf("sanitized body still contains %q: %s", bad, body)
		}
	}
}

func TestHTMLSanitizerIgnoresNonHTML(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	san := NewHTMLSanitizer(store)
	resp := &jsonrpc.Response{ID: jsonrpc.IntID(1), Result: json.RawMessage(`{"body":"just plain text"}`)}
	res, err := san.Apply(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Pass {
		t.Fatalf("Kind = %v, want Pass for plain text", res.Kind)
	}
}

func TestPIIRedactorEmail(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	pii := NewPIIRedactor(store)

	resp := &jsonrpc.Response{ID: jsonrpc.IntID(1), Result: json.RawMessage(`"contact a@b.com"`)}
	res, err := pii.Apply(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Transform {
		t.Fatalf("Kind = %v, want Transform", res.Kind)
	}
	out := res.Message.(*jsonrpc.Response)
	if !strings.Contains(string(out.Result), emailMarker) {
		t.Fatalf("result = %s, want email marker", out.Result)
	}
	if pii.Counts()["email"] != 1 {
		t.Fatalf("email count = %d, want 1", pii.Counts()["email"])
	}
}

func TestPIIRedactorSkipsLongBase64Runs(t *testing.T) {
	store := NewConfigStore(DefaultConfig())
	pii := NewPIIRedactor(store)

	// A long, unbroken base64-alphabet run that happens to contain 16
	// consecutive digits must not be mistaken for a credit card number.
	blob := strings.Repeat("a", 30) + "1234567890123456" + strings.Repeat("b", 30)
	resp := &jsonrpc.Response{ID: jsonrpc.IntID(1), Result: json.RawMessage(`"` + blob + `"`)}
	res, err := pii.Apply(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Pass {
		t.Fatalf("Kind = %v, want Pass (base64 blob must be skipped)", res.Kind)
	}
}

func TestSizeManagerSummarizesOverThreshold(t *testing.T) {
	store := NewConfigStore(Config{SummarizeThreshold: 20, HardTruncate: 1000})
	sm := NewSizeManager(store)

	long := strings.Repeat("a", 30) + ". " + strings.Repeat("b", 30) + "."
	resp := &jsonrpc.Response{ID: jsonrpc.IntID(1), Result: json.RawMessage(`"` + long + `"`)}
	res, err := sm.Apply(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Transform {
		t.Fatalf("Kind = %v, want Transform", res.Kind)
	}
	out := res.Message.(*jsonrpc.Response)
	if !strings.Contains(string(out.Result), "truncated, original length") {
		t.Fatalf("result = %s, want summarize marker", out.Result)
	}
}

func TestSizeManagerHardTruncatesBeyondHardLimit(t *testing.T) {
	store := NewConfigStore(Config{SummarizeThreshold: 10, HardTruncate: 20})
	sm := NewSizeManager(store)

	long := strings.Repeat("x", 100)
	resp := &jsonrpc.Response{ID: jsonrpc.IntID(1), Result: json.RawMessage(`"` + long + `"`)}
	res, err := sm.Apply(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	out := res.Message.(*jsonrpc.Response)
	if !strings.Contains(string(out.Result), "[TRUNCATED]") {
		t.Fatalf("result = %s, want [TRUNCATED] marker", out.Result)
	}
}

func TestSizeManagerPassesUnderThreshold(t *testing.T) {
	store := NewConfigStore(Config{SummarizeThreshold: 1000, HardTruncate: 2000})
	sm := NewSizeManager(store)
	resp := &jsonrpc.Response{ID: jsonrpc.IntID(1), Result: json.RawMessage(`"short"`)}
	res, err := sm.Apply(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != filter.Pass {
		t.Fatalf("Kind = %v, want Pass", res.Kind)
	}
}

func TestContentFilterChainOrdering(t *testing.T) {
	store := NewConfigStore(Config{
		BlockedDomains:     []string{"evil.example"},
		RedactEmails:       true,
		RemoveScripts:      true,
		SummarizeThreshold: 5000,
		HardTruncate:       25000,
	})
	chain := filter.NewChain()
	chain.Register(NewBlacklist(store), filter.MaskBoth, true)
	chain.Register(NewHTMLSanitizer(store), filter.MaskBoth, true)
	chain.Register(NewPIIRedactor(store), filter.MaskBoth, true)
	chain.Register(NewSizeManager(store), filter.MaskBoth, true)

	resp := &jsonrpc.Response{ID: jsonrpc.IntID(1), Result: json.RawMessage(`"contact a@b.com"`)}
	result, out, err := chain.Run(filter.Inbound, "s1", resp)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != filter.Pass {
		t.Fatalf("chain Kind = %v, want Pass", result.Kind)
	}
	final := out.(*jsonrpc.Response)
	if !strings.Contains(string(final.Result), emailMarker) {
		t.Fatalf("final = %s, want email redacted", final.Result)
	}
}
