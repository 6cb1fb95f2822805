// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package child

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingBufferTrimsOnOverflow(t *testing.T) {
	b := newRollingBuffer(4000, 2000)
	b.Append(bytes.Repeat([]byte("a"), 3000))
	assert.Len(t, b.data, 3000)

	b.Append(bytes.Repeat([]byte("b"), 2000))
	assert.Len(t, b.data, 2000)
	assert.True(t, bytes.HasSuffix(b.data, bytes.Repeat([]byte("b"), 2000)))
}

func TestRollingBufferPreservesCrossChunkMatch(t *testing.T) {
	b := newRollingBuffer(4000, 2000)
	b.Append([]byte("Limit reached "))
	b.Append([]byte("· resets 5pm\n"))

	hint, ok := MatchSentinel(b.String())
	assert.True(t, ok)
	assert.Equal(t, "5pm", hint)
}
