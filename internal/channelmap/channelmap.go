// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package channelmap persists the mapping from session id to chat-channel
// record that the relay and hook entrypoint share through a single JSON
// document on disk, atomically rewritten on every mutation.
package channelmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pruneAge is how long an inactive entry survives before being dropped.
const pruneAge = 7 * 24 * time.Hour

// Entry is one session's channel mapping.
type Entry struct {
	SessionID         string     `json:"session_id"`
	ChannelID         string     `json:"channel_id"`
	ChannelName       string     `json:"channel_name"`
	TmuxSession       string     `json:"tmux_session"`
	Project           string     `json:"project"`
	CWD               string     `json:"cwd"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
	ArchivedAt        *time.Time `json:"archived_at,omitempty"`
	PendingMessageTS  string     `json:"pending_message_ts,omitempty"`
	ProgressMessageTS string     `json:"progress_message_ts,omitempty"`
}

func (e Entry) referenceTime() time.Time {
	if e.ArchivedAt != nil {
		return *e.ArchivedAt
	}
	return e.CreatedAt
}

type document struct {
	Entries map[string]Entry `json:"entries"`
}

// Map is a handle to a channel-map JSON file on disk.
type Map struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a Map backed by the JSON document at path.
func New(path string) *Map {
	return &Map{path: path, now: time.Now}
}

func (m *Map) load() (document, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{Entries: make(map[string]Entry)}, nil
		}
		return document{}, fmt.Errorf("read channel map: %w", err)
	}
	if len(data) == 0 {
		return document{Entries: make(map[string]Entry)}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse channel map: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]Entry)
	}
	return doc, nil
}

// save prunes inactive entries older than pruneAge, then writes the
// document atomically.
func (m *Map) save(doc document) error {
	cutoff := m.now().Add(-pruneAge)
	for id, entry := range doc.Entries {
		if !entry.Active && entry.referenceTime().Before(cutoff) {
			delete(doc.Entries, id)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal channel map: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return fmt.Errorf("create channel map dir: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp channel map: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename channel map: %w", err)
	}
	return nil
}

func (m *Map) mutate(fn func(document) (document, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return err
	}
	next, err := fn(doc)
	if err != nil {
		return err
	}
	return m.save(next)
}

// Get returns the entry for sessionID, if any.
func (m *Map) Get(sessionID string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return Entry{}, false, err
	}
	entry, ok := doc.Entries[sessionID]
	return entry, ok, nil
}

// GetByCWD returns the most recently created active entry for cwd, if any.
func (m *Map) GetByCWD(cwd string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return Entry{}, false, err
	}
	var best Entry
	found := false
	for _, entry := range doc.Entries {
		if !entry.Active || entry.CWD != cwd {
			continue
		}
		if !found || entry.CreatedAt.After(best.CreatedAt) {
			best = entry
			found = true
		}
	}
	return best, found, nil
}

// GetByChannelID returns the entry whose ChannelID matches id, if any.
func (m *Map) GetByChannelID(id string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return Entry{}, false, err
	}
	for _, entry := range doc.Entries {
		if entry.ChannelID == id {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

// ChannelCreator opens a new chat-system channel for a session and returns
// its id and name, setting a topic and posting a welcome message.
type ChannelCreator interface {
	CreateChannel(project, cwd string) (channelID, channelName string, err error)
}

// GetOrCreate returns the existing entry for sessionID, or creates a new
// channel via creator and records the mapping.
func (m *Map) GetOrCreate(sessionID, project, cwd, tmuxSession string, creator ChannelCreator) (Entry, error) {
	if entry, ok, err := m.Get(sessionID); err != nil {
		return Entry{}, err
	} else if ok {
		return entry, nil
	}

	channelID, channelName, err := creator.CreateChannel(project, cwd)
	if err != nil {
		return Entry{}, fmt.Errorf("create channel: %w", err)
	}

	entry := Entry{
		SessionID:   sessionID,
		ChannelID:   channelID,
		ChannelName: channelName,
		TmuxSession: tmuxSession,
		Project:     project,
		CWD:         cwd,
		Active:      true,
		CreatedAt:   m.now(),
	}

	err = m.mutate(func(doc document) (document, error) {
		doc.Entries[sessionID] = entry
		return doc, nil
	})
	return entry, err
}

// SetTyping records that a typing indicator is active on msgTS for
// sessionID's channel, preserving it for later threading.
func (m *Map) SetTyping(sessionID, msgTS string) error {
	return m.mutate(func(doc document) (document, error) {
		entry, ok := doc.Entries[sessionID]
		if !ok {
			return doc, fmt.Errorf("channel_not_found")
		}
		entry.PendingMessageTS = msgTS
		doc.Entries[sessionID] = entry
		return doc, nil
	})
}

// ClearTyping removes the pending-message marker for sessionID.
func (m *Map) ClearTyping(sessionID string) error {
	return m.mutate(func(doc document) (document, error) {
		entry, ok := doc.Entries[sessionID]
		if !ok {
			return doc, fmt.Errorf("channel_not_found")
		}
		entry.PendingMessageTS = ""
		doc.Entries[sessionID] = entry
		return doc, nil
	})
}

// SetProgressMessage records the timestamp of the currently displayed
// progress message for sessionID.
func (m *Map) SetProgressMessage(sessionID, ts string) error {
	return m.mutate(func(doc document) (document, error) {
		entry, ok := doc.Entries[sessionID]
		if !ok {
			return doc, fmt.Errorf("channel_not_found")
		}
		entry.ProgressMessageTS = ts
		doc.Entries[sessionID] = entry
		return doc, nil
	})
}

// ClearProgress clears only the progress-message field for sessionID. The
// caller is expected to have already deleted the chat message via the API;
// this re-reads the map before writing specifically so a concurrent
// SetTyping write is not clobbered.
func (m *Map) ClearProgress(sessionID string) error {
	return m.SetProgressMessage(sessionID, "")
}

// DeactivateByTmuxSession marks every active entry for tmuxSession as
// inactive, without remapping it onto a new session id. Used by the swap
// loop in remote mode to clear stale entries before a fresh lineage
// starts under the same multiplexer session.
func (m *Map) DeactivateByTmuxSession(tmuxSession string) error {
	return m.mutate(func(doc document) (document, error) {
		now := m.now()
		for id, entry := range doc.Entries {
			if entry.Active && entry.TmuxSession == tmuxSession {
				entry.Active = false
				entry.ArchivedAt = &now
				doc.Entries[id] = entry
			}
		}
		return doc, nil
	})
}

// Archive marks every entry with the given channel id as inactive.
func (m *Map) Archive(channelID string) error {
	return m.mutate(func(doc document) (document, error) {
		now := m.now()
		for id, entry := range doc.Entries {
			if entry.ChannelID == channelID {
				entry.Active = false
				entry.ArchivedAt = &now
				doc.Entries[id] = entry
			}
		}
		return doc, nil
	})
}

// ReuseForTmux remaps an existing active entry for tmuxSession onto
// newSessionID: the old session id's entry is deactivated, and a copy of
// it — with the progress-message timestamp cleared — is installed under
// newSessionID pointing at the same channel. If no active entry exists for
// tmuxSession, ReuseForTmux is a no-op and returns false.
func (m *Map) ReuseForTmux(newSessionID, tmuxSession string) (Entry, bool, error) {
	var result Entry
	found := false

	err := m.mutate(func(doc document) (document, error) {
		var oldID string
		var old Entry
		for id, entry := range doc.Entries {
			if entry.Active && entry.TmuxSession == tmuxSession {
				oldID = id
				old = entry
				found = true
				break
			}
		}
		if !found {
			return doc, nil
		}

		now := m.now()
		old.Active = false
		old.ArchivedAt = &now
		doc.Entries[oldID] = old

		result = Entry{
			SessionID:         newSessionID,
			ChannelID:         old.ChannelID,
			ChannelName:       old.ChannelName,
			TmuxSession:       tmuxSession,
			Project:           old.Project,
			CWD:               old.CWD,
			Active:            true,
			CreatedAt:         now,
			PendingMessageTS:  old.PendingMessageTS,
			ProgressMessageTS: "",
		}
		doc.Entries[newSessionID] = result
		return doc, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return result, found, nil
}
