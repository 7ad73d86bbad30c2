// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strings"
)

// validateEnvelopeCase rejects top-level envelope keys that differ from the
// canonical "jsonrpc"/"id"/"method"/"params"/"result"/"error" only in case.
// Go's encoding/json is case-insensitive when matching struct fields, which
// would otherwise let a client smuggle a second "Id" field past Classify
// and have it silently ignored or, worse, matched instead of "id". This
// mirrors the duplicate-key defense in the teacher SDK's
// internal/jsonrpc2.StrictUnmarshal, scoped to the envelope only: params
// and result payloads are opaque to the bridge and are not re-validated
// here.
func validateEnvelopeCase(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("jsonrpc: not a JSON object: %w", err)
	}
	seen := make(map[string]string, len(raw))
	for key := range raw {
		lower := strings.ToLower(key)
		if original, ok := seen[lower]; ok && original != key {
			return fmt.Errorf("jsonrpc: duplicate envelope key with different case: %q and %q", original, key)
		}
		seen[lower] = key
	}
	for key := range raw {
		switch strings.ToLower(key) {
		case "jsonrpc", "id", "method", "params", "result", "error":
			if key != strings.ToLower(key) {
				return fmt.Errorf("jsonrpc: envelope field case mismatch: got %q", key)
			}
		}
	}
	return nil
}

// ClassifyStrict is Classify preceded by validateEnvelopeCase. The framing
// codec (C1) uses this for every line read from the child and every body
// read from a transport, per the parse-error taxonomy in spec §7.
func ClassifyStrict(data []byte) (Message, error) {
	if err := validateEnvelopeCase(data); err != nil {
		return nil, err
	}
	return Classify(data)
}
