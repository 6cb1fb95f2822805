// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tmux wraps the subset of tmux commands the chat relay needs to
// relay text into a multiplexer pane and read it back: session existence,
// creation, literal key sends, paste-buffer sends, and pane capture.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Executor runs tmux commands. It is an interface so the relay's command
// handlers can be tested against a fake.
type Executor interface {
	HasSession(ctx context.Context, session string) bool
	NewSession(ctx context.Context, session, workdir string) error
	SendKeys(ctx context.Context, target, keys string, literal bool) error
	SendText(ctx context.Context, target, text string) error
	CapturePane(ctx context.Context, target string, withHistory bool) ([]byte, error)
	DisplayMessage(ctx context.Context, target, format string) (string, error)
	AttachSession(ctx context.Context, session string) error
}

// RealExecutor shells out to the tmux binary.
type RealExecutor struct{}

// NewRealExecutor returns an Executor backed by the tmux binary on PATH.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// HasSession reports whether the named session exists.
func (e *RealExecutor) HasSession(ctx context.Context, session string) bool {
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", session)
	return cmd.Run() == nil
}

// NewSession creates a detached session rooted at workdir.
func (e *RealExecutor) NewSession(ctx context.Context, session, workdir string) error {
	args := []string{"new-session", "-d", "-s", session}
	if workdir != "" {
		args = append(args, "-c", workdir)
	}
	cmd := exec.CommandContext(ctx, "tmux", args...)
	cmd.Env = filterTMUXEnv(os.Environ())

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux new-session failed: %s: %w", stderr.String(), err)
	}
	return nil
}

// SendKeys sends keys to target. When literal is true the bytes are sent
// with send-keys -l so the transport never interprets them as key-name
// sequences; when false, keys names like "Enter" or "C-c" are honored.
func (e *RealExecutor) SendKeys(ctx context.Context, target, keys string, literal bool) error {
	args := []string{"send-keys", "-t", target}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, keys)
	return exec.CommandContext(ctx, "tmux", args...).Run()
}

// SendText sends text via load-buffer/paste-buffer, which tolerates
// special characters that send-keys -l would mangle.
func (e *RealExecutor) SendText(ctx context.Context, target, text string) error {
	loadCmd := exec.CommandContext(ctx, "tmux", "load-buffer", "-")
	loadCmd.Stdin = strings.NewReader(text)
	if err := loadCmd.Run(); err != nil {
		return fmt.Errorf("tmux load-buffer failed: %w", err)
	}

	pasteCmd := exec.CommandContext(ctx, "tmux", "paste-buffer", "-d", "-t", target)
	return pasteCmd.Run()
}

// CapturePane returns the rendered contents of target's pane.
func (e *RealExecutor) CapturePane(ctx context.Context, target string, withHistory bool) ([]byte, error) {
	args := []string{"capture-pane", "-t", target, "-p", "-e"}
	if withHistory {
		args = append(args, "-S", "-")
	}
	return exec.CommandContext(ctx, "tmux", args...).Output()
}

// DisplayMessage evaluates a tmux format string against target.
func (e *RealExecutor) DisplayMessage(ctx context.Context, target, format string) (string, error) {
	out, err := exec.CommandContext(ctx, "tmux", "display-message", "-t", target, "-p", format).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// AttachSession attaches the caller's controlling terminal to session.
// The relay daemon never calls it.
func (e *RealExecutor) AttachSession(ctx context.Context, session string) error {
	cmd := exec.CommandContext(ctx, "tmux", "attach-session", "-t", session)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// filterTMUXEnv strips the TMUX environment variable so a new session is
// never accidentally created as nested inside the caller's own session.
func filterTMUXEnv(env []string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "TMUX=") {
			result = append(result, e)
		}
	}
	return result
}
