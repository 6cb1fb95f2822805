// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"context"
	"sync"
)

// Fake is an in-memory Executor double for tests that exercise relay
// command handling without shelling out to a real tmux binary.
type Fake struct {
	mu sync.Mutex

	Sessions     map[string]bool
	SentKeys     []SentKey
	SentText     []SentText
	PaneContents map[string][]byte
	DisplayText  map[string]string
}

// SentKey records one SendKeys call.
type SentKey struct {
	Target  string
	Keys    string
	Literal bool
}

// SentText records one SendText call.
type SentText struct {
	Target string
	Text   string
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Sessions:     make(map[string]bool),
		PaneContents: make(map[string][]byte),
		DisplayText:  make(map[string]string),
	}
}

func (f *Fake) HasSession(_ context.Context, session string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sessions[session]
}

func (f *Fake) NewSession(_ context.Context, session, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions[session] = true
	return nil
}

func (f *Fake) SendKeys(_ context.Context, target, keys string, literal bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentKeys = append(f.SentKeys, SentKey{Target: target, Keys: keys, Literal: literal})
	return nil
}

func (f *Fake) SendText(_ context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SentText = append(f.SentText, SentText{Target: target, Text: text})
	return nil
}

func (f *Fake) CapturePane(_ context.Context, target string, _ bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PaneContents[target], nil
}

func (f *Fake) DisplayMessage(_ context.Context, target, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DisplayText[target], nil
}

func (f *Fake) AttachSession(context.Context, string) error {
	return nil
}
