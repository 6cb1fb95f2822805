// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package child

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var positiveCorpus = []string{
	"Limit reached · resets 2:30pm\n",
	"You've hit your limit • resets in 3 hours\n",
	"Limit reached\n·\nresets 9am\n",
	"limit reached · resets 5:00 PM\n",
	"prefix text\nLimit reached · resets tomorrow at noon\n",
}

var negativeCorpus = []string{
	"everything is fine\n",
	"Limit reached but no reset info here\n",
	"resets at midnight, no limit language\n",
	"",
}

func TestSentinelMatchesPositiveCorpus(t *testing.T) {
	for _, s := range positiveCorpus {
		_, ok := MatchSentinel(s)
		assert.True(t, ok, "expected match for %q", s)
	}
}

func TestSentinelRejectsNegativeCorpus(t *testing.T) {
	for _, s := range negativeCorpus {
		_, ok := MatchSentinel(s)
		assert.False(t, ok, "expected no match for %q", s)
	}
}

func TestSentinelCapturesResetHint(t *testing.T) {
	hint, ok := MatchSentinel("Limit reached · resets 2h 30m\n")
	assert.True(t, ok)
	assert.Equal(t, "2h 30m", hint)
}

func TestStripANSIRemovesCSIAndOSC(t *testing.T) {
	styled := "\x1b[31mLimit reached\x1b[0m · resets 5pm\n"
	stripped := StripANSI(styled)
	assert.NotContains(t, stripped, "\x1b[")
	assert.Contains(t, stripped, "Limit reached")
}

func TestSentinelCrossChunkBoundaryLatency(t *testing.T) {
	// A chunk that ends mid-hint, before any reset text has arrived, does
	// not match: (.+?) has nothing to capture yet. Once the rest of the
	// hint and a newline arrive in a later chunk, it does. This is a
	// deliberate, preserved property, not a bug: detection latency depends
	// on the child's newline behavior at a chunk boundary.
	partial := "Limit reached · resets "
	_, ok := MatchSentinel(partial)
	assert.False(t, ok)

	complete := partial + "5pm\n"
	_, ok = MatchSentinel(complete)
	assert.True(t, ok)
}
