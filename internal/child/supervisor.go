// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package child implements C2: the supervisor that owns the single
// upstream stdio JSON-RPC child process, per spec §4.2 and §4.5.5.
package child

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bridgemcp/bridge/internal/framing"
	"github.com/bridgemcp/bridge/jsonrpc"
)

// State is one of the health states in spec §4.5.5's state machine.
type State int

const (
	Starting State = iota
	Ready
	Degraded
	Dead
	Terminal
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Dead:
		return "dead"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Config configures a Supervisor.
type Config struct {
	Command string
	Args    []string
	Env     []string // additional env vars, appended to os.Environ()
	Dir     string

	HealthDeadline       time.Duration // default 10s
	GraceShutdown        time.Duration // default 10s
	MaxLineBytes         int
	BackoffBase          time.Duration // default 1s
	BackoffCap           time.Duration // default 30s
	MaxRestartsPerWindow int           // default 5
	RestartWindow        time.Duration // default 60s
	DegradedRecovery     time.Duration // default 30s, Degraded -> Ready
}

func (c *Config) setDefaults() {
	if c.HealthDeadline == 0 {
		c.HealthDeadline = 10 * time.Second
	}
	if c.GraceShutdown == 0 {
		c.GraceShutdown = 10 * time.Second
	}
	if c.MaxLineBytes == 0 {
		c.MaxLineBytes = framing.DefaultMaxLineBytes
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.MaxRestartsPerWindow == 0 {
		c.MaxRestartsPerWindow = 5
	}
	if c.RestartWindow == 0 {
		c.RestartWindow = 60 * time.Second
	}
	if c.DegradedRecovery == 0 {
		c.DegradedRecovery = 30 * time.Second
	}
}

// Supervisor spawns, observes, and restarts the upstream stdio process.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	// onRestart is invoked (with a human-readable reason) whenever the child
	// exits or is otherwise deemed dead, BEFORE a respawn is attempted. The
	// broker uses this to fail all pending-request entries per spec §4.2.
	onRestart func(reason string)

	breaker *gobreaker.CircuitBreaker

	mu           sync.Mutex
	cmd          *exec.Cmd
	stdin        io.WriteCloser
	state        State
	restartTimes []time.Time

	writeCh chan writeRequest
	outCh   chan jsonrpc.Message
	done    chan struct{}

	healthMu      sync.Mutex
	healthWaiters map[string]chan *jsonrpc.Response

	closed atomic.Bool
}

type writeRequest struct {
	msg    jsonrpc.Message
	result chan error
}

// New returns a Supervisor for the given configuration. onRestart is called
// whenever the child becomes unavailable (crash, framing failure, or
// graceful stop), before any respawn attempt.
func New(cfg Config, logger *slog.Logger, onRestart func(reason string)) *Supervisor {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:           cfg,
		logger:        logger,
		onRestart:     onRestart,
		state:         Starting,
		writeCh:       make(chan writeRequest, 64),
		outCh:         make(chan jsonrpc.Message, 256),
		done:          make(chan struct{}),
		healthWaiters: make(map[string]chan *jsonrpc.Response),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "child-health",
		MaxRequests: 1,
		Interval:    cfg.RestartWindow,
		Timeout:     cfg.BackoffCap,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxRestartsPerWindow)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("child health breaker state change", "from", from, "to", to)
			if to == gobreaker.StateOpen {
				s.setState(Terminal)
			}
		},
	})
	return s
}

// Messages returns the channel of messages read from the child's stdout.
func (s *Supervisor) Messages() <-chan jsonrpc.Message { return s.outCh }

// State returns the current health state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start spawns the child, runs the startup health check, and begins the
// background reader/writer tasks. It returns once the child is Ready or
// the restart budget has been exhausted (Terminal).
func (s *Supervisor) Start(ctx context.Context) error {
	if _, err := s.breaker.Execute(func() (any, error) {
		return nil, s.spawnAndProbe(ctx)
	}); err != nil {
		if s.State() == Terminal {
			return fmt.Errorf("child: restart budget exhausted: %w", err)
		}
		return fmt.Errorf("child: startup health check failed: %w", err)
	}
	go s.watchdog()
	return nil
}

func (s *Supervisor) spawnAndProbe(ctx context.Context) error {
	codec, err := s.spawn()
	if err != nil {
		return fmt.Errorf("child: spawn failed: %w", err)
	}
	go s.readLoop(codec)
	go s.writeLoop(codec)

	ok, err := s.healthCheck(ctx, s.cfg.HealthDeadline)
	if err != nil || !ok {
		s.setState(Dead)
		if err == nil {
			err = errors.New("health check timed out")
		}
		return err
	}
	s.setState(Ready)
	return nil
}

func (s *Supervisor) spawn() (*framing.Codec, error) {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	cmd.Env = append(os.Environ(), s.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	codec := framing.NewCodec(stdout, stdin, s.cfg.MaxLineBytes)

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.mu.Unlock()

	go s.drainStderr(stderr)
	go s.waitExit(cmd)
	return codec, nil
}

// drainStderr reads the child's stderr and logs it; stderr never
// participates in the protocol (§4.1).
func (s *Supervisor) drainStderr(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.logger.Info("child stderr", "data", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) waitExit(cmd *exec.Cmd) {
	err := cmd.Wait()
	if s.closed.Load() {
		return // expected, from Stop()
	}
	s.logger.Warn("child exited unexpectedly", "error", err)
	s.setState(Dead)
	if s.onRestart != nil {
		s.onRestart("child process exited")
	}
	s.restart()
}

// readLoop reads framed messages from the child's stdout and either
// resolves a health waiter or forwards the message to outCh. Two
// consecutive framing failures trigger a restart (§4.5.5, §4.9).
func (s *Supervisor) readLoop(codec *framing.Codec) {
	var consecutiveErrors int
	for {
		msg, err := codec.ReadOne()
		if err != nil {
			if err == io.EOF {
				return
			}
			consecutiveErrors++
			s.logger.Warn("framing decode error on child stdout", "error", err, "consecutive", consecutiveErrors)
			s.setState(Degraded)
			if consecutiveErrors >= 2 {
				s.setState(Dead)
				if s.onRestart != nil {
					s.onRestart("framing decode error")
				}
				s.restart()
				return
			}
			continue
		}
		consecutiveErrors = 0

		if resp, ok := msg.(*jsonrpc.Response); ok {
			if s.resolveHealthWaiter(resp) {
				continue
			}
		}
		select {
		case s.outCh <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *Supervisor) resolveHealthWaiter(resp *jsonrpc.Response) bool {
	s.healthMu.Lock()
	ch, ok := s.healthWaiters[resp.ID.String()]
	if ok {
		delete(s.healthWaiters, resp.ID.String())
	}
	s.healthMu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

func (s *Supervisor) writeLoop(codec *framing.Codec) {
	for {
		select {
		case req := <-s.writeCh:
			err := codec.WriteOne(req.msg)
			req.result <- err
		case <-s.done:
			return
		}
	}
}

// Write enqueues msg for delivery to the child's stdin, preserving the
// submission order across all callers (§4.2's ordering guarantee).
func (s *Supervisor) Write(ctx context.Context, msg jsonrpc.Message) error {
	req := writeRequest{msg: msg, result: make(chan error, 1)}
	select {
	case s.writeCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("child: supervisor stopped")
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// healthCheck sends an initialize request and waits up to deadline for a
// well-formed response, per §4.2.
func (s *Supervisor) healthCheck(ctx context.Context, deadline time.Duration) (bool, error) {
	id := jsonrpc.StringID("health-" + fmt.Sprint(time.Now().UnixNano()))
	waiter := make(chan *jsonrpc.Response, 1)

	s.healthMu.Lock()
	s.healthWaiters[id.String()] = waiter
	s.healthMu.Unlock()

	hctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if err := s.Write(hctx, &jsonrpc.Request{ID: id, Method: "initialize"}); err != nil {
		return false, err
	}

	select {
	case resp := <-waiter:
		return resp != nil, nil
	case <-hctx.Done():
		s.healthMu.Lock()
		delete(s.healthWaiters, id.String())
		s.healthMu.Unlock()
		return false, nil
	}
}

// HealthCheck re-probes the running child, transitioning Degraded->Ready
// on success. Exposed for the broker's health watchdog (§5).
func (s *Supervisor) HealthCheck(ctx context.Context) bool {
	ok, err := s.healthCheck(ctx, s.cfg.HealthDeadline)
	if err == nil && ok {
		s.setState(Ready)
	}
	return ok
}

// watchdog periodically recovers a Degraded child to Ready after a clean
// interval, per §4.5.5 "Degraded -> Ready: 30s of clean operation."
func (s *Supervisor) watchdog() {
	ticker := time.NewTicker(s.cfg.DegradedRecovery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.State() == Degraded {
				s.setState(Ready)
			}
		case <-s.done:
			return
		}
	}
}

// restart respawns the child with exponential backoff, honoring the
// restart budget (§4.2, §4.5.5: "restart budget exhausted -> Terminal").
// The budget is tracked directly against restartTimes within
// RestartWindow, independent of the circuit breaker's own
// consecutive-failure trip: a child that crashes and is *successfully*
// respawned every time never accumulates consecutive failures, so the
// breaker alone would never reach the budget in the common crash-loop
// case.
func (s *Supervisor) restart() {
	if s.closed.Load() || s.State() == Terminal {
		return
	}
	backoff, exhausted := s.nextBackoff()
	if exhausted {
		s.logger.Error("restart budget exhausted within window",
			"max_restarts", s.cfg.MaxRestartsPerWindow, "window", s.cfg.RestartWindow)
		s.setState(Terminal)
		return
	}
	s.setState(Starting)
	_, err := s.breaker.Execute(func() (any, error) {
		time.Sleep(backoff)
		return nil, s.spawnAndProbe(context.Background())
	})
	if err != nil {
		s.logger.Error("child restart failed", "error", err, "state", s.State())
		return
	}
}

// nextBackoff records a restart attempt and returns the backoff duration
// to wait before it, along with whether the restart budget (at most
// MaxRestartsPerWindow restarts within RestartWindow) is now exhausted.
func (s *Supervisor) nextBackoff() (backoff time.Duration, exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-s.cfg.RestartWindow)
	kept := s.restartTimes[:0]
	for _, t := range s.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restartTimes = append(kept, now)
	n := len(s.restartTimes)
	backoff = s.cfg.BackoffBase
	for i := 1; i < n; i++ {
		backoff *= 2
		if backoff > s.cfg.BackoffCap {
			backoff = s.cfg.BackoffCap
			break
		}
	}
	return backoff, n >= s.cfg.MaxRestartsPerWindow
}

// Stop closes stdin, waits grace, then SIGTERMs and finally SIGKILLs the
// child, per §4.2.
func (s *Supervisor) Stop(grace time.Duration) error {
	s.closed.Store(true)
	close(s.done)

	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if stdin != nil {
		stdin.Close()
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case <-exited:
		return nil
	case <-time.After(grace):
	}

	cmd.Process.Signal(os.Interrupt)
	select {
	case <-exited:
		return nil
	case <-time.After(grace):
	}
	return cmd.Process.Kill()
}
