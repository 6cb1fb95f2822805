// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("work"))
	assert.True(t, ValidName("work_2"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("has a space"))
	assert.False(t, ValidName("way-too-long-way-too-long-way-too-long-way-too-long-way-too-long-xx"))
}

func TestAddRejectsDuplicateAndInvalid(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "config.json"))

	require.NoError(t, r.Add(Account{Name: "work", ProfileDir: dir}))
	assert.Error(t, r.Add(Account{Name: "work", ProfileDir: dir}))
	assert.Error(t, r.Add(Account{Name: "bad name", ProfileDir: dir}))

	accounts, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestRemoveRefusesDefault(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "config.json"))
	require.NoError(t, r.Add(Account{Name: DefaultAccountName, ProfileDir: dir}))
	assert.Error(t, r.Remove(DefaultAccountName))
}

func TestSetAndClearPriority(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "config.json"))
	require.NoError(t, r.Add(Account{Name: "work", ProfileDir: dir}))

	require.NoError(t, r.SetPriority("work", 2))
	accounts, err := r.Load()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.NotNil(t, accounts[0].Priority)
	assert.Equal(t, 2, *accounts[0].Priority)

	require.NoError(t, r.ClearPriority("work"))
	accounts, err = r.Load()
	require.NoError(t, err)
	assert.Nil(t, accounts[0].Priority)
}

func TestEnsureDefaultIdempotent(t *testing.T) {
	dir := t.TempDir()
	profileDir := filepath.Join(dir, "profile")
	require.NoError(t, os.MkdirAll(profileDir, 0700))

	r := New(filepath.Join(dir, "config.json"))
	require.NoError(t, r.EnsureDefault(profileDir))
	require.NoError(t, r.EnsureDefault(profileDir))

	accounts, err := r.Load()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, DefaultAccountName, accounts[0].Name)
}

func TestSaveLeavesNoTmpSibling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	r := New(path)
	require.NoError(t, r.Add(Account{Name: "work", ProfileDir: dir}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	r := New(filepath.Join(dir, "missing.json"))
	accounts, err := r.Load()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
