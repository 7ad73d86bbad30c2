// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bridgemcp/bridge/internal/filter"
	"github.com/bridgemcp/bridge/jsonrpc"
)

var sentenceBoundaryRe = regexp.MustCompile(`[.!?]\s+`)

// SizeManager is the fourth and final filter layered into C6 (§4.8 step
// 4): shrinks oversized response fields, first to a summary, then —
// beyond a harder threshold — to a fixed truncation marker.
type SizeManager struct {
	store *ConfigStore
}

// NewSizeManager returns a SizeManager filter reading its thresholds
// from store.
func NewSizeManager(store *ConfigStore) *SizeManager {
	return &SizeManager{store: store}
}

func (f *SizeManager) Name() string { return "size_manager" }

func (f *SizeManager) Apply(_ filter.Direction, _ string, msg jsonrpc.Message) (filter.Result, error) {
	cfg := f.store.Current()
	if cfg.SummarizeThreshold <= 0 && cfg.HardTruncate <= 0 {
		return filter.PassResult(), nil
	}

	out, changed, err := walkMessageStrings(msg, func(s string) (string, bool) {
		shrunk := shrink(s, cfg)
		return shrunk, shrunk != s
	})
	if err != nil {
		return filter.Result{}, err
	}
	if !changed {
		return filter.PassResult(), nil
	}
	return filter.Result{Kind: filter.Transform, Message: out}, nil
}

// shrink applies the summarize/hard-truncate ladder (§4.8 step 4). The
// harder threshold wins when both apply to the same field.
func shrink(s string, cfg Config) string {
	if cfg.HardTruncate > 0 && len(s) > cfg.HardTruncate {
		return fmt.Sprintf("[TRUNCATED] (original length %d)", len(s))
	}
	if cfg.SummarizeThreshold > 0 && len(s) > cfg.SummarizeThreshold {
		return summarize(s, cfg.SummarizeThreshold)
	}
	return s
}

// summarize keeps the first few sentences of s, bounded by threshold,
// and appends a truncation notice naming the original length.
func summarize(s string, threshold int) string {
	const maxSentences = 3
	locs := sentenceBoundaryRe.FindAllStringIndex(s, maxSentences)
	cut := threshold
	if len(locs) > 0 {
		last := locs[len(locs)-1][1]
		if last < cut {
			cut = last
		}
	}
	if cut > len(s) {
		cut = len(s)
	}
	head := strings.TrimSpace(s[:cut])
	return fmt.Sprintf("%s … [truncated, original length %d]", head, len(s))
}
