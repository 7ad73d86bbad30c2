// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package bridgeutil holds small helpers shared across the bridge's
// internal packages, adapted from the teacher SDK's internal/util.
package bridgeutil

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/google/uuid"
)

// Wrapf wraps *errp with a formatted message, in place, if *errp is non-nil.
// Call as `defer Wrapf(&err, "doing %s", thing)`.
func Wrapf(errp *error, format string, args ...any) {
	if *errp != nil {
		*errp = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), *errp)
	}
}

// IsLoopback reports whether addr (a host, or host:port) refers to the
// local machine. Used to decide whether OAuth metadata URLs (§9 open
// question on --advertise-url) can safely default to localhost.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.Trim(addr, "[]")
	}
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.IsLoopback()
}

// NewToken returns a cryptographically random opaque token suitable for use
// as a session ID or bridge-scoped request id, per spec §3's
// "session_id (opaque token, cryptographically random)".
func NewToken() string {
	return uuid.NewString()
}
