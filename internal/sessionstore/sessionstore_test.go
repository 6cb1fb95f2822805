// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessionID(t *testing.T) {
	assert.True(t, ValidateSessionID("550e8400-e29b-41d4-a716-446655440000"))
	assert.True(t, ValidateSessionID("550E8400-E29B-41D4-A716-446655440000"))
	assert.False(t, ValidateSessionID("not-a-uuid"))
	assert.False(t, ValidateSessionID("../../etc/passwd"))
	assert.False(t, ValidateSessionID(""))
}

func TestCWDHashReplacesSlashesOnly(t *testing.T) {
	hash, err := CWDHash("/Users/alice/src/groups.io")
	require.NoError(t, err)
	assert.Equal(t, "-Users-alice-src-groups.io", hash)
}

func TestMigrateRejectsInvalidSessionID(t *testing.T) {
	err := Migrate(t.TempDir(), t.TempDir(), "-tmp-x", "../../etc/passwd")
	assert.Error(t, err)
}

func TestMigrateCopiesTranscriptAndSidecar(t *testing.T) {
	from := t.TempDir()
	to := t.TempDir()
	hash := "-tmp-proj"
	id := "550e8400-e29b-41d4-a716-446655440000"

	srcDir := filepath.Join(from, "projects", hash)
	require.NoError(t, os.MkdirAll(srcDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, id+".jsonl"), []byte(`{"line":1}`), 0600))

	sidecarDir := filepath.Join(srcDir, id, "nested")
	require.NoError(t, os.MkdirAll(sidecarDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(sidecarDir, "artifact.txt"), []byte("hi"), 0600))

	require.NoError(t, Migrate(from, to, hash, id))

	dstTranscript := filepath.Join(to, "projects", hash, id+".jsonl")
	data, err := os.ReadFile(dstTranscript)
	require.NoError(t, err)
	assert.Equal(t, `{"line":1}`, string(data))

	sidecarData, err := os.ReadFile(filepath.Join(to, "projects", hash, id, "nested", "artifact.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(sidecarData))
}

func TestMigrateFailsWhenSourceMissing(t *testing.T) {
	err := Migrate(t.TempDir(), t.TempDir(), "-tmp-proj", "550e8400-e29b-41d4-a716-446655440000")
	assert.Error(t, err)
}

func TestFindLatestInProfilePicksNewest(t *testing.T) {
	profile := t.TempDir()
	dir := filepath.Join(profile, "projects", "-tmp-proj")
	require.NoError(t, os.MkdirAll(dir, 0700))

	older := "550e8400-e29b-41d4-a716-446655440000"
	newer := "660e8400-e29b-41d4-a716-446655440001"
	require.NoError(t, os.WriteFile(filepath.Join(dir, older+".jsonl"), []byte("a"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, newer+".jsonl"), []byte("b"), 0600))

	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(dir, older+".jsonl"), now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, newer+".jsonl"), now, now))

	found, ok, err := FindLatestInProfile(profile, "/tmp/proj")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer, found.SessionID)
}

func TestFindLatestInProfileMissingDirIsNotError(t *testing.T) {
	_, ok, err := FindLatestInProfile(t.TempDir(), "/tmp/nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindAcrossProfilesByIDRejectsInvalidID(t *testing.T) {
	_, _, err := FindAcrossProfilesByID(nil, "../../etc/passwd")
	assert.Error(t, err)
}
