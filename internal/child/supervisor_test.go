// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package child

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/bridgemcp/bridge/jsonrpc"
)

// echoInitializeScript replies to any "initialize" request on stdin with a
// canned success response on stdout, then keeps the process alive reading
// further lines and ignoring them. Used to drive the supervisor against a
// real child process without depending on any external binary.
const echoInitializeScript = `
while IFS= read -r line; do
  case "$line" in
    *'"method":"initialize"'*)
      id=$(echo "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
      if [ -n "$id" ]; then
        printf '{"jsonrpc":"2.0","id":%s,"result":{}}\n' "$id"
      else
        rid=$(echo "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
        printf '{"jsonrpc":"2.0","id":"%s","result":{}}\n' "$rid"
      fi
      ;;
  esac
done
`

func newTestSupervisor(t *testing.T, onRestart func(string)) *Supervisor {
	t.Helper()
	cfg := Config{
		Command:        "/bin/sh",
		Args:           []string{"-c", echoInitializeScript},
		HealthDeadline: 5 * time.Second,
		GraceShutdown:  2 * time.Second,
	}
	return New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)), onRestart)
}

func TestSupervisorStartHealthCheck(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	s := newTestSupervisor(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.State(); got != Ready {
		t.Fatalf("State() = %v, want Ready", got)
	}
	s.Stop(time.Second)
}

func TestSupervisorWriteForwardsMessages(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	s := newTestSupervisor(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(time.Second)

	if err := s.Write(ctx, &jsonrpc.Request{ID: jsonrpc.IntID(42), Method: "initialize"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case msg := <-s.Messages():
		resp, ok := msg.(*jsonrpc.Response)
		if !ok {
			t.Fatalf("got %#v, want *jsonrpc.Response", msg)
		}
		if resp.ID.String() != "42" {
			t.Errorf("response id = %q, want 42", resp.ID.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

// TestSupervisorTerminatesAfterRestartBudgetExhausted drives restart()
// directly against a command that can never spawn: every attempt fails
// immediately, so ConsecutiveFailures never resets and the old
// breaker-only trip condition would also reach Terminal eventually. The
// case this guards is the opposite one (§4.2/§4.5.5): restarts whose
// health probe succeeds every time never accumulate consecutive
// failures, so Terminal must come from the restart_window count alone.
func TestSupervisorTerminatesAfterRestartBudgetExhausted(t *testing.T) {
	cfg := Config{
		Command:              "/nonexistent-binary-for-supervisor-tests",
		MaxRestartsPerWindow: 3,
		RestartWindow:        time.Minute,
		BackoffBase:          time.Millisecond,
		BackoffCap:           2 * time.Millisecond,
	}
	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	for i := 0; i < cfg.MaxRestartsPerWindow; i++ {
		s.restart()
	}
	if got := s.State(); got != Terminal {
		t.Fatalf("State() = %v after %d restarts, want Terminal (budget is %d)", got, cfg.MaxRestartsPerWindow, cfg.MaxRestartsPerWindow)
	}

	// Further restart attempts must be no-ops: the supervisor never
	// tries to spawn again once the budget is exhausted.
	before := len(s.restartTimes)
	s.restart()
	if len(s.restartTimes) != before {
		t.Fatalf("restart() recorded a new attempt after reaching Terminal: restartTimes went from %d to %d", before, len(s.restartTimes))
	}
	if got := s.State(); got != Terminal {
		t.Fatalf("State() = %v after a restart() call past budget, want Terminal", got)
	}
}
