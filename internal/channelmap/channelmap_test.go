// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package channelmap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	channelID, channelName string
}

func (f *fakeCreator) CreateChannel(project, cwd string) (string, string, error) {
	return f.channelID, f.channelName, nil
}

func TestGetOrCreateCreatesThenReturnsExisting(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "channel-map.json"))
	creator := &fakeCreator{channelID: "C1", channelName: "proj-abc"}

	entry, err := m.GetOrCreate("session-1", "proj", "/tmp/proj", "proj-abc123", creator)
	require.NoError(t, err)
	assert.Equal(t, "C1", entry.ChannelID)
	assert.True(t, entry.Active)

	again, err := m.GetOrCreate("session-1", "proj", "/tmp/proj", "proj-abc123", creator)
	require.NoError(t, err)
	assert.Equal(t, entry, again)
}

func TestArchiveDeactivatesAllEntriesForChannel(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "channel-map.json"))
	creator := &fakeCreator{channelID: "C1", channelName: "proj-abc"}
	_, err := m.GetOrCreate("session-1", "proj", "/tmp/proj", "proj-abc123", creator)
	require.NoError(t, err)

	require.NoError(t, m.Archive("C1"))

	entry, ok, err := m.Get("session-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, entry.Active)
	assert.NotNil(t, entry.ArchivedAt)
}

func TestReuseForTmuxRemapsAndDeactivatesOld(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "channel-map.json"))
	creator := &fakeCreator{channelID: "C1", channelName: "proj-abc"}
	_, err := m.GetOrCreate("old", "proj", "/tmp/proj", "proj-abc123", creator)
	require.NoError(t, err)
	require.NoError(t, m.SetProgressMessage("old", "1234.5678"))

	remapped, found, err := m.ReuseForTmux("new", "proj-abc123")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "C1", remapped.ChannelID)
	assert.Empty(t, remapped.ProgressMessageTS)

	oldEntry, ok, err := m.Get("old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, oldEntry.Active)

	newEntry, ok, err := m.Get("new")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, newEntry.Active)
}

func TestReuseForTmuxNoActiveEntryIsNoop(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "channel-map.json"))
	_, found, err := m.ReuseForTmux("new", "nonexistent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPruningRemovesOnlyOldInactiveEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel-map.json")
	m := New(path)

	old := time.Now().Add(-8 * 24 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)
	doc := document{Entries: map[string]Entry{
		"stale":  {SessionID: "stale", ChannelID: "C1", Active: false, ArchivedAt: &old},
		"fresh":  {SessionID: "fresh", ChannelID: "C2", Active: false, ArchivedAt: &recent},
		"active": {SessionID: "active", ChannelID: "C3", Active: true, CreatedAt: old},
	}}
	require.NoError(t, m.save(doc))

	reloaded, err := m.load()
	require.NoError(t, err)
	assert.NotContains(t, reloaded.Entries, "stale")
	assert.Contains(t, reloaded.Entries, "fresh")
	assert.Contains(t, reloaded.Entries, "active")
}

func TestSaveLeavesNoTmpSibling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channel-map.json")
	m := New(path)
	require.NoError(t, m.save(document{Entries: map[string]Entry{}}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
