// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package child spawns the interactive child CLI in a pseudo-terminal,
// passes stdio through, scans its output for the rate-limit sentinel, and
// forwards signals — one invocation of run_once at a time.
package child

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	gops "github.com/mitchellh/go-ps"
	"golang.org/x/term"
)

const (
	rollingBufferMax  = 4000
	rollingBufferTail = 2000

	// killGrace is how long the supervisor waits between a rate-limit
	// SIGTERM and the escalation SIGKILL.
	killGrace = 3 * time.Second
)

// ConfigDirEnv is the environment variable name the child reads its
// profile directory from.
const ConfigDirEnv = "CLAUDE_CONFIG_DIR"

// Options configures one run_once invocation.
type Options struct {
	ProfileDir string
	RemoteMode bool
	TrueColor  bool
}

// Result is what run_once observed about the child's lifetime. SessionID
// is left empty here: the supervisor never parses the child's transcript,
// so the swap loop identifies the session to migrate itself via
// sessionstore.FindLatestInProfile, or from an explicit --resume argument
// it already knows about.
type Result struct {
	ExitCode      int
	ExitedCleanly bool
	RateLimited   bool
	ResetHint     string
	SessionID     string
}

// Supervisor runs one child process at a time in a PTY.
type Supervisor struct {
	// CLIPath is the path to the child binary. Defaults to "claude" on
	// PATH if empty.
	CLIPath string
}

// RunOnce spawns the child with args under account and blocks until it
// exits, is rate-limited, or is interrupted by a forwarded signal.
func (s *Supervisor) RunOnce(ctx context.Context, args []string, opts Options) (Result, error) {
	binary := s.CLIPath
	if binary == "" {
		binary = "claude"
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = buildEnv(os.Environ(), opts)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return Result{}, fmt.Errorf("start child in pty: %w", err)
	}
	defer ptmx.Close()

	cleanup := newCleanup(ptmx)
	defer cleanup.run()

	resizeDone := watchResize(ptmx)
	defer close(resizeDone)

	stdinDone := make(chan struct{})
	var stdinRestore func()
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err == nil {
			stdinRestore = func() { term.Restore(int(os.Stdin.Fd()), oldState) }
			cleanup.add(stdinRestore)
		}
	}
	go pumpStdin(ptmx, stdinDone)
	defer close(stdinDone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var (
		mu          sync.Mutex
		rateLimited bool
		resetHint   string
		killing     bool
	)

	buf := newRollingBuffer(rollingBufferMax, rollingBufferTail)
	outputDone := make(chan struct{})

	go func() {
		defer close(outputDone)
		chunk := make([]byte, 32*1024)
		for {
			n, err := ptmx.Read(chunk)
			if n > 0 {
				os.Stdout.Write(chunk[:n])

				mu.Lock()
				alreadyKilling := killing
				if !alreadyKilling {
					buf.Append(chunk[:n])
					if hint, ok := MatchSentinel(buf.String()); ok {
						rateLimited = true
						resetHint = hint
						killing = true
						go killWithEscalation(cmd)
					}
				}
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				mu.Lock()
				alreadyKilling := killing
				mu.Unlock()
				if !alreadyKilling {
					cmd.Process.Signal(sig)
				}
			case <-outputDone:
				return
			}
		}
	}()

	waitErr := cmd.Wait()
	<-outputDone

	mu.Lock()
	defer mu.Unlock()

	result := Result{RateLimited: rateLimited, ResetHint: resetHint}
	if waitErr == nil {
		result.ExitedCleanly = true
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		result.ExitedCleanly = !rateLimited
		return result, nil
	}
	return result, fmt.Errorf("wait for child: %w", waitErr)
}

func buildEnv(base []string, opts Options) []string {
	env := make([]string, 0, len(base)+4)
	for _, e := range base {
		if strings.HasPrefix(e, ConfigDirEnv+"=") || strings.HasPrefix(e, "CLAUDECODE=") {
			continue
		}
		env = append(env, e)
	}
	env = append(env, ConfigDirEnv+"="+opts.ProfileDir)
	if opts.TrueColor {
		env = append(env, "COLORTERM=truecolor")
	}
	if opts.RemoteMode {
		env = append(env, "HOFF_REMOTE=1")
	}
	return env
}

func pumpStdin(w io.Writer, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// killWithEscalation sends SIGTERM, then SIGKILL after killGrace if the
// process has not exited, confirming liveness via a process-table lookup
// rather than assuming Wait hasn't returned yet.
func killWithEscalation(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	cmd.Process.Signal(syscall.SIGTERM)

	timer := time.NewTimer(killGrace)
	defer timer.Stop()
	<-timer.C

	if processAlive(cmd.Process.Pid) {
		cmd.Process.Signal(syscall.SIGKILL)
	}
}

func processAlive(pid int) bool {
	proc, err := gops.FindProcess(pid)
	if err != nil || proc == nil {
		return false
	}
	return true
}

// cleanup collects idempotent teardown actions for a PTY session: restore
// terminal mode, remove listeners, free handles. Safe to run on every exit
// path.
type cleanup struct {
	mu      sync.Mutex
	ran     bool
	actions []func()
}

func newCleanup(ptmx *os.File) *cleanup {
	c := &cleanup{}
	c.add(func() { ptmx.Close() })
	return c
}

func (c *cleanup) add(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, fn)
}

func (c *cleanup) run() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ran {
		return
	}
	c.ran = true
	for i := len(c.actions) - 1; i >= 0; i-- {
		func() {
			defer func() { recover() }()
			c.actions[i]()
		}()
	}
}

func watchResize(ptmx *os.File) chan struct{} {
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)

	go func() {
		defer signal.Stop(sigCh)
		propagateSize(ptmx)
		for {
			select {
			case <-sigCh:
				propagateSize(ptmx)
			case <-done:
				return
			}
		}
	}()
	return done
}

func propagateSize(ptmx *os.File) {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		return
	}
	if err := pty.Setsize(ptmx, size); err != nil {
		log.Printf("child: resize propagation failed: %v", err)
	}
}
