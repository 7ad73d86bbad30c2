// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package contentfilter

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/bridgemcp/bridge/internal/filter"
)

// AuditLog records every non-Pass content-filter outcome, per §4.8
// "every non-Pass outcome is logged with {session_id, filter_name,
// action, reason, original_hash, filtered_hash}; original/filtered
// bodies are not logged unless explicitly enabled."
type AuditLog struct {
	logger    *slog.Logger
	logBodies bool
}

// NewAuditLog returns an AuditLog writing to logger. Pass logBodies=true
// only in environments where logging raw message content is acceptable.
func NewAuditLog(logger *slog.Logger, logBodies bool) *AuditLog {
	return &AuditLog{logger: logger, logBodies: logBodies}
}

// Record logs one filter outcome. original/filtered are the message
// bodies before/after the filter ran; they are hashed, and included
// verbatim only when logBodies is enabled.
func (a *AuditLog) Record(sessionID, filterName string, kind filter.ResultKind, reason string, original, filtered []byte) {
	if kind == filter.Pass {
		return
	}
	attrs := []any{
		"session_id", sessionID,
		"filter_name", filterName,
		"action", actionName(kind),
		"reason", reason,
		"original_hash", hashHex(original),
		"filtered_hash", hashHex(filtered),
	}
	if a.logBodies {
		attrs = append(attrs, "original", string(original), "filtered", string(filtered))
	}
	a.logger.Info("content filter action", attrs...)
}

func actionName(kind filter.ResultKind) string {
	switch kind {
	case filter.Transform:
		return "transform"
	case filter.Drop:
		return "drop"
	case filter.Block:
		return "block"
	default:
		return "pass"
	}
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
