// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExpired(t *testing.T) {
	assert.True(t, IsExpired(Blob{}))
	assert.True(t, IsExpired(Blob{ExpiresAt: time.Now().Add(-time.Hour).UnixMilli()}))
	assert.False(t, IsExpired(Blob{ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}))
}

func TestValidAccessTokenFormat(t *testing.T) {
	assert.True(t, validAccessTokenFormat("sk-ant-oat01-abcdef"))
	assert.False(t, validAccessTokenFormat("bogus-token"))
	assert.False(t, validAccessTokenFormat(""))
}

func TestFallbackFileRoundTrip(t *testing.T) {
	profile := t.TempDir()
	blob := Blob{AccessToken: "sk-ant-oat01-xyz", RefreshToken: "r1", ExpiresAt: 123}
	data, err := json.Marshal(blob)
	require.NoError(t, err)

	require.NoError(t, writeFallbackFile(profile, data))

	_, statErr := os.Stat(filepath.Join(profile, ".hoff-credentials.json.tmp"))
	assert.True(t, os.IsNotExist(statErr))

	read, err := readFallbackFile(profile)
	require.NoError(t, err)
	assert.Equal(t, blob.AccessToken, read.AccessToken)
	assert.Equal(t, blob.RefreshToken, read.RefreshToken)
}
