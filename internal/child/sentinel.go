// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package child

import "regexp"

// ansiPattern strips CSI and OSC escape sequences before the sentinel scan
// runs, so styled child output doesn't hide a rate-limit message from the
// regex.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// sentinelPattern is the rate-limit detector. Its capture group is trimmed
// by a trailing anchor requiring end-of-string or a newline; on a partial
// chunk boundary this can fail to capture until the next chunk arrives.
// This latency is a deliberate, preserved property of the detector, not a
// bug to fix.
var sentinelPattern = regexp.MustCompile(`(?is)(?:Limit reached|You've hit your limit)\s*[·•]\s*resets\s+(.+?)(?:\s*$|\n)`)

// StripANSI removes CSI and OSC escape sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// MatchSentinel tests ANSI-stripped output against the rate-limit sentinel
// and returns the captured reset hint text on the first match.
func MatchSentinel(s string) (hint string, ok bool) {
	stripped := StripANSI(s)
	m := sentinelPattern.FindStringSubmatch(stripped)
	if m == nil {
		return "", false
	}
	return m[1], true
}
