// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import "strings"

// PostChunkLimit is the character limit Relay.Post chunks text at.
const PostChunkLimit = 39500

// RelayCharLimit is the character limit text is truncated to before being
// relayed into the multiplexer.
const RelayCharLimit = 4096

// ChunkAtNewline splits text into pieces no longer than limit characters,
// breaking just after the nearest preceding newline. A window of limit
// characters with no newline in it is cut at exactly limit characters,
// mid-line.
func ChunkAtNewline(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > 0; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
