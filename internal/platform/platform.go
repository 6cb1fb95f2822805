// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package platform adapts the supervisor to the host operating system: it
// names the default profile directory, chooses the credential-store
// backend, and locates the terminal-multiplexer binary.
package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// OS identifies a supported host operating system family.
type OS int

const (
	// Unknown is any OS the supervisor has no native secret-store path for.
	Unknown OS = iota
	Darwin
	Linux
	Windows
)

// Current returns the host OS family.
func Current() OS {
	switch runtime.GOOS {
	case "darwin":
		return Darwin
	case "linux":
		return Linux
	case "windows":
		return Windows
	default:
		return Unknown
	}
}

func (o OS) String() string {
	switch o {
	case Darwin:
		return "darwin"
	case Linux:
		return "linux"
	case Windows:
		return "windows"
	default:
		return "unknown"
	}
}

// DefaultProfileDir returns the profile directory the child uses when no
// account override is in effect — the system default. This is the
// directory the child would read from if the supervisor were not involved
// at all.
func DefaultProfileDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude"), nil
}

// ConfigDir returns the per-user directory the supervisor owns: the
// registry, the .env file, profile directories, and data subdirectories.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hoff"), nil
}

// MultiplexerBinary returns the name of the terminal multiplexer binary to
// shell out to, and an error if it cannot be found on PATH.
func MultiplexerBinary() (string, error) {
	return exec.LookPath("tmux")
}

// SupportsNativeKeychain reports whether the host has a first-class
// OS-native secret store the credential store should prefer over the file
// fallback.
func SupportsNativeKeychain() bool {
	switch Current() {
	case Darwin, Linux, Windows:
		return true
	default:
		return false
	}
}
