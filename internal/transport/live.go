// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net/http"
)

const liveConsoleTemplate = `<!DOCTYPE html>
<html>
<head><title>bridge live</title></head>
<body>
<h1>bridgemcp</h1>
<p>child state: %s</p>
<p>sessions: %d</p>
<p>pending requests: %d</p>
<p>This is a minimal debug console. Poll GET /health for live figures.</p>
</body>
</html>
`

// handleLiveConsole serves the optional GET /live debug console (§4.7.1).
func (s *Server) handleLiveConsole(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, liveConsoleTemplate, s.child.State(), s.sessions.Len(), s.registry.Len())
}
