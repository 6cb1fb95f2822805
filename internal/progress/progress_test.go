// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMissingFileFlushesImmediately(t *testing.T) {
	s := NewStore(t.TempDir())
	buf := s.Read("session-1")
	assert.Equal(t, int64(0), buf.LastFlushTS)
	assert.Empty(t, buf.Events)
}

func TestAppendCapsAtMaxEvents(t *testing.T) {
	s := NewStore(t.TempDir())
	for i := 0; i < maxEvents+10; i++ {
		_, _, err := s.Append("session-1", Event{Type: "tool_use", TS: time.Now()})
		require.NoError(t, err)
	}
	buf := s.Read("session-1")
	assert.Len(t, buf.Events, maxEvents)
}

func TestFirstAppendIsDueImmediately(t *testing.T) {
	s := NewStore(t.TempDir())
	_, due, err := s.Append("session-1", Event{Type: "tool_use"})
	require.NoError(t, err)
	assert.True(t, due)
}

func TestFlushResetsEventsAndPreservesNothing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, _, err := s.Append("session-1", Event{Type: "tool_use", Detail: "reading file"})
	require.NoError(t, err)

	text, err := s.Flush("session-1")
	require.NoError(t, err)
	assert.Contains(t, text, "tool_use")

	buf := s.Read("session-1")
	assert.Empty(t, buf.Events)
}

func TestRenderDedupesConsecutiveAndKeepsLast8(t *testing.T) {
	events := []Event{
		{Type: "a"}, {Type: "a"}, {Type: "b"},
		{Type: "c"}, {Type: "d"}, {Type: "e"},
		{Type: "f"}, {Type: "g"}, {Type: "h"}, {Type: "i"},
	}
	text := Render(events)
	lines := splitLines(text)
	assert.Len(t, lines, renderLimit)
	assert.Equal(t, "• b", lines[0])
	assert.Equal(t, "• i", lines[len(lines)-1])
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func TestSaveLeavesNoTmpSibling(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_, _, err := s.Append("session-1", Event{Type: "tool_use"})
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
