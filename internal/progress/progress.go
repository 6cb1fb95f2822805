// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package progress buffers recent tool-activity events per session on
// disk and decides when they are due to be flushed into a chat message.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxEvents bounds the buffer to the most recent events.
const maxEvents = 100

// flushInterval is the minimum time between flushes.
const flushInterval = 3000 * time.Millisecond

// renderLimit is how many of the most recent deduplicated events are
// rendered on flush.
const renderLimit = 8

// Event is one tool-activity entry.
type Event struct {
	Type   string    `json:"type"`
	Detail string    `json:"detail,omitempty"`
	TS     time.Time `json:"ts"`
}

// Buffer is the on-disk shape of one session's progress file.
type Buffer struct {
	Events      []Event `json:"events"`
	LastFlushTS int64   `json:"last_flush_ts"`
}

// Store manages per-session progress-buffer files under dir.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a Store rooted at dir (typically
// "<user-config>/data/progress").
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("progress-%s.json", sessionID))
}

// Read returns the current buffer for sessionID. A missing file returns
// LastFlushTS=0, deliberately, so the first event flushes immediately. A
// corrupt file is treated as empty but stamps LastFlushTS to now, to avoid
// a spurious immediate flush on the next append.
func (s *Store) Read(sessionID string) Buffer {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return Buffer{LastFlushTS: 0}
	}
	if len(data) == 0 {
		return Buffer{LastFlushTS: s.now().UnixMilli()}
	}
	var buf Buffer
	if err := json.Unmarshal(data, &buf); err != nil {
		return Buffer{LastFlushTS: s.now().UnixMilli()}
	}
	return buf
}

func (s *Store) write(sessionID string, buf Buffer) error {
	data, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress buffer: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	path := s.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp progress buffer: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename progress buffer: %w", err)
	}
	return nil
}

// Append adds event to sessionID's buffer, trimming to the most recent
// maxEvents. It returns the buffer after appending and whether a flush is
// now due.
func (s *Store) Append(sessionID string, event Event) (Buffer, bool, error) {
	buf := s.Read(sessionID)
	buf.Events = append(buf.Events, event)
	if len(buf.Events) > maxEvents {
		buf.Events = buf.Events[len(buf.Events)-maxEvents:]
	}

	if err := s.write(sessionID, buf); err != nil {
		return Buffer{}, false, err
	}

	due := s.now().UnixMilli()-buf.LastFlushTS >= flushInterval.Milliseconds()
	return buf, due, nil
}

// Flush renders the buffer's events and resets it to empty with
// LastFlushTS set to now. The rendered text is returned for the caller to
// post via update_progress.
func (s *Store) Flush(sessionID string) (string, error) {
	buf := s.Read(sessionID)
	text := Render(buf.Events)

	buf.Events = nil
	buf.LastFlushTS = s.now().UnixMilli()
	if err := s.write(sessionID, buf); err != nil {
		return "", err
	}
	return text, nil
}

// Render formats events into a bullet list: consecutive duplicate events
// are collapsed, and only the most recent renderLimit survivors are shown.
func Render(events []Event) string {
	deduped := make([]Event, 0, len(events))
	for _, e := range events {
		if n := len(deduped); n > 0 && deduped[n-1].Type == e.Type && deduped[n-1].Detail == e.Detail {
			continue
		}
		deduped = append(deduped, e)
	}

	if len(deduped) > renderLimit {
		deduped = deduped[len(deduped)-renderLimit:]
	}

	lines := make([]string, 0, len(deduped))
	for _, e := range deduped {
		if e.Detail != "" {
			lines = append(lines, fmt.Sprintf("• %s: %s", e.Type, e.Detail))
		} else {
			lines = append(lines, fmt.Sprintf("• %s", e.Type))
		}
	}
	return strings.Join(lines, "\n")
}
