// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import (
	"regexp"
	"strings"

	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/jsonrpc"
)

var (
	scriptTagRe     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	iframeTagRe     = regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`)
	eventAttrRe     = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsURLRe         = regexp.MustCompile(`(?i)javascript:[^"'\s>]*`)
	trackingPixelRe = regexp.MustCompile(`(?is)<img\b[^>]*\b(width|height)\s*=\s*["']?0?1["']?[^>]*>`)
	htmlSniffRe     = regexp.MustCompile(`(?is)<\s*(html|body|div|span|a|img|script|iframe|p|table|tr|td)\b`)
	whitespaceRunRe = regexp.MustCompile(`[ \t\f\v]{2,}`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
)

// HTMLSanitizer is the second filter layered into C6 (§4.8 step 2): for
// string fields heuristically identified as HTML, strips <script>,
// <iframe>, event-handler attributes, javascript: URLs, and
// tracking-pixel <img> elements, then normalizes whitespace.
type HTMLSanitizer struct {
	store *ConfigStore
}

// NewHTMLSanitizer returns an HTMLSanitizer filter reading its toggles
// from store.
func NewHTMLSanitizer(store *ConfigStore) *HTMLSanitizer {
	return &HTMLSanitizer{store: store}
}

func (f *HTMLSanitizer) Name() string { return "html_sanitizer" }

func (f *HTMLSanitizer) Apply(_ filter.Direction, _ string, msg jsonrpc.Message) (filter.Result, error) {
	cfg := f.store.Current()
	if !cfg.RemoveScripts && !cfg.RemoveTrackers {
		return filter.PassResult(), nil
	}

	out, changed, err := walkMessageStrings(msg, func(s string) (string, bool) {
		if !looksLikeHTML(s) {
			return s, false
		}
		sanitized := sanitizeHTML(s, cfg)
		return sanitized, sanitized != s
	})
	if err != nil {
		return filter.Result{}, err
	}
	if !changed {
		return filter.PassResult(), nil
	}
	return filter.Result{Kind: filter.Transform, Message: out}, nil
}

// looksLikeHTML applies the spec's "content sniffing or tag presence"
// heuristic (§4.8 step 2).
func looksLikeHTML(s string) bool {
	return htmlSniffRe.MatchString(s)
}

func sanitizeHTML(s string, cfg Config) string {
	out := s
	if cfg.RemoveScripts {
		out = scriptTagRe.ReplaceAllString(out, "")
		out = iframeTagRe.ReplaceAllString(out, "")
		out = eventAttrRe.ReplaceAllString(out, "")
		out = jsURLRe.ReplaceAllString(out, "")
	}
	if cfg.RemoveTrackers {
		out = trackingPixelRe.ReplaceAllString(out, "")
	}
	out = whitespaceRunRe.ReplaceAllString(out, " ")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
