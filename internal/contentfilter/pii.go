// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import (
	"regexp"
	"sync/atomic"

	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/jsonrpc"
)

var (
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
	ssnRe    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ccardRe  = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)

	// base64RunRe flags long contiguous base64-alphabet runs so the
	// credit-card/phone patterns don't false-positive inside an encoded
	// blob (§4.8 step 3 "MUST NOT false-positive inside base64 blobs").
	base64RunRe = regexp.MustCompile(`[A-Za-z0-9+/]{64,}={0,2}`)
)

const (
	emailMarker  = "[EMAIL_REDACTED]"
	phoneMarker  = "[PHONE_REDACTED]"
	ssnMarker    = "[SSN_REDACTED]"
	ccardMarker  = "[CREDIT_CARD_REDACTED]"
)

// PIIRedactor is the third filter layered into C6 (§4.8 step 3):
// regex-replaces emails, phone numbers, SSNs, and credit-card-shaped
// digit groups with fixed markers.
type PIIRedactor struct {
	store *ConfigStore

	emailCount  atomic.Int64
	phoneCount  atomic.Int64
	ssnCount    atomic.Int64
	ccardCount  atomic.Int64
}

// NewPIIRedactor returns a PIIRedactor filter reading its toggles from
// store.
func NewPIIRedactor(store *ConfigStore) *PIIRedactor {
	return &PIIRedactor{store: store}
}

func (f *PIIRedactor) Name() string { return "pii_redactor" }

// Counts reports per-category redaction totals, for
// GET /filters/metrics (§8 Scenario C: "pii_redactor.redactions.email == 1").
func (f *PIIRedactor) Counts() map[string]int64 {
	return map[string]int64{
		"email":       f.emailCount.Load(),
		"phone":       f.phoneCount.Load(),
		"ssn":         f.ssnCount.Load(),
		"credit_card": f.ccardCount.Load(),
	}
}

func (f *PIIRedactor) Apply(_ filter.Direction, _ string, msg jsonrpc.Message) (filter.Result, error) {
	cfg := f.store.Current()
	if !cfg.RedactEmails && !cfg.RedactPhones && !cfg.RedactSSNs && !cfg.RedactCreditCards {
		return filter.PassResult(), nil
	}

	out, changed, err := walkMessageStrings(msg, func(s string) (string, bool) {
		redacted := f.redact(s, cfg)
		return redacted, redacted != s
	})
	if err != nil {
		return filter.Result{}, err
	}
	if !changed {
		return filter.PassResult(), nil
	}
	return filter.Result{Kind: filter.Transform, Message: out}, nil
}

func (f *PIIRedactor) redact(s string, cfg Config) string {
	segments := splitOutBase64Runs(s)
	var out string
	for _, seg := range segments {
		if seg.isBase64 {
			out += seg.text
			continue
		}
		out += f.redactPlain(seg.text, cfg)
	}
	return out
}

func (f *PIIRedactor) redactPlain(s string, cfg Config) string {
	out := s
	if cfg.RedactEmails {
		if n := len(emailRe.FindAllString(out, -1)); n > 0 {
			f.emailCount.Add(int64(n))
			out = emailRe.ReplaceAllString(out, emailMarker)
		}
	}
	if cfg.RedactSSNs {
		if n := len(ssnRe.FindAllString(out, -1)); n > 0 {
			f.ssnCount.Add(int64(n))
			out = ssnRe.ReplaceAllString(out, ssnMarker)
		}
	}
	if cfg.RedactCreditCards {
		if n := len(ccardRe.FindAllString(out, -1)); n > 0 {
			f.ccardCount.Add(int64(n))
			out = ccardRe.ReplaceAllString(out, ccardMarker)
		}
	}
	if cfg.RedactPhones {
		if n := len(phoneRe.FindAllString(out, -1)); n > 0 {
			f.phoneCount.Add(int64(n))
			out = phoneRe.ReplaceAllString(out, phoneMarker)
		}
	}
	return out
}

type segment struct {
	text     string
	isBase64 bool
}

// splitOutBase64Runs splits s into alternating plain/base64-run segments
// so redaction regexes only ever see the plain segments.
func splitOutBase64Runs(s string) []segment {
	matches := base64RunRe.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return []segment{{text: s}}
	}
	var segs []segment
	prev := 0
	for _, m := range matches {
		if m[0] > prev {
			segs = append(segs, segment{text: s[prev:m[0]]})
		}
		segs = append(segs, segment{text: s[m[0]:m[1]], isBase64: true})
		prev = m[1]
	}
	if prev < len(s) {
		segs = append(segs, segment{text: s[prev:]})
	}
	return segs
}
