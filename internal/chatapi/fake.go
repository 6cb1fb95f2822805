// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package chatapi

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Client double for tests.
type Fake struct {
	mu sync.Mutex

	nextTS     int
	nextChan   int
	Messages   map[string]string // ts -> text
	Channels   map[string][]string
	Reactions  map[string]map[string]bool // ts -> emoji set
	Archived   map[string]bool
	NameTaken  map[string]bool // name -> simulate name_taken once
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Messages:  make(map[string]string),
		Channels:  make(map[string][]string),
		Reactions: make(map[string]map[string]bool),
		Archived:  make(map[string]bool),
		NameTaken: make(map[string]bool),
	}
}

func (f *Fake) PostMessage(channelID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTS++
	ts := fmt.Sprintf("%d.0", f.nextTS)
	f.Messages[ts] = text
	return ts, nil
}

func (f *Fake) PostThreadReply(channelID, parentTS, text string) (string, error) {
	return f.PostMessage(channelID, text)
}

func (f *Fake) UpdateMessage(channelID, ts, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Messages[ts]; !ok {
		return fmt.Errorf("message_not_found")
	}
	f.Messages[ts] = text
	return nil
}

func (f *Fake) DeleteMessage(channelID, ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Messages, ts)
	return nil
}

func (f *Fake) AddReaction(channelID, ts, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Reactions[ts] == nil {
		f.Reactions[ts] = make(map[string]bool)
	}
	f.Reactions[ts][emoji] = true
	return nil
}

func (f *Fake) RemoveReaction(channelID, ts, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Reactions[ts], emoji)
	return nil
}

func (f *Fake) CreateChannel(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NameTaken[name] {
		delete(f.NameTaken, name)
		return "", fmt.Errorf("name_taken")
	}
	f.nextChan++
	id := fmt.Sprintf("C%d", f.nextChan)
	f.Channels[id] = nil
	return id, nil
}

func (f *Fake) SetTopic(channelID, topic string) error { return nil }

func (f *Fake) InviteUser(channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels[channelID] = append(f.Channels[channelID], userID)
	return nil
}

func (f *Fake) ArchiveChannel(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Archived[channelID] = true
	return nil
}
