// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sessionstore locates session transcripts across account
// profiles and atomically migrates them — the transcript plus any sidecar
// artifacts — from one profile to another so the child can resume.
package sessionstore

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ValidateSessionID reports whether s matches the UUID v4 character shape.
// This is the sole defence against path traversal through the session
// identifier — every path-constructing function in this package calls it
// first. Parsing is delegated to google/uuid for the general 8-4-4-4-12
// hex-and-dash shape; the length check first rejects the braced, urn: and
// dash-less forms uuid.Parse would otherwise accept, and the version nibble
// is checked separately since uuid.Parse accepts any UUID version.
func ValidateSessionID(s string) bool {
	if len(s) != 36 {
		return false
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return parsed.Version() == 4
}

// CWDHash expands a leading ~ and replaces every path separator with a
// dash, producing the directory name the child's project storage uses.
func CWDHash(cwd string) (string, error) {
	expanded, err := expandHome(cwd)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(expanded, "/", "-"), nil
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return home, nil
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:]), nil
	}
	return p, nil
}

// Found describes one located session transcript.
type Found struct {
	SessionID string
	Path      string
}

// FindLatestInProfile returns the most recently modified transcript under
// profileDir for the given working directory, or false if none exists.
func FindLatestInProfile(profileDir, cwd string) (Found, bool, error) {
	hash, err := CWDHash(cwd)
	if err != nil {
		return Found{}, false, err
	}
	return findLatestInDir(filepath.Join(profileDir, "projects", hash))
}

func findLatestInDir(dir string) (Found, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Found{}, false, nil
		}
		return Found{}, false, fmt.Errorf("read project dir: %w", err)
	}

	var best Found
	var bestMod int64
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".jsonl")
		if !ValidateSessionID(id) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime().UnixNano()
		if !found || mod > bestMod {
			found = true
			bestMod = mod
			best = Found{SessionID: id, Path: filepath.Join(dir, entry.Name())}
		}
	}
	return best, found, nil
}

// AccountProfile pairs an account name with its profile directory, the
// shape every cross-profile search operates on.
type AccountProfile struct {
	Name       string
	ProfileDir string
}

// CrossProfileFound additionally records which account and cwd hash a
// match was found under.
type CrossProfileFound struct {
	Found
	Account string
	Hash    string
}

// FindAcrossProfilesByID scans every account's project directories for a
// transcript named sessionID.jsonl, returning the newest match across all
// profiles.
func FindAcrossProfilesByID(accounts []AccountProfile, sessionID string) (CrossProfileFound, bool, error) {
	if !ValidateSessionID(sessionID) {
		return CrossProfileFound{}, false, fmt.Errorf("invalid session ID")
	}

	var best CrossProfileFound
	var bestMod int64
	found := false

	for _, acct := range accounts {
		projectsDir := filepath.Join(acct.ProfileDir, "projects")
		hashDirs, err := os.ReadDir(projectsDir)
		if err != nil {
			continue
		}
		for _, hashDir := range hashDirs {
			if !hashDir.IsDir() {
				continue
			}
			path := filepath.Join(projectsDir, hashDir.Name(), sessionID+".jsonl")
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			mod := info.ModTime().UnixNano()
			if !found || mod > bestMod {
				found = true
				bestMod = mod
				best = CrossProfileFound{
					Found:   Found{SessionID: sessionID, Path: path},
					Account: acct.Name,
					Hash:    hashDir.Name(),
				}
			}
		}
	}

	return best, found, nil
}

// FindLatestAcrossProfiles is like FindAcrossProfilesByID but restricted to
// the single project directory matching cwd's hash.
func FindLatestAcrossProfiles(accounts []AccountProfile, cwd string) (CrossProfileFound, bool, error) {
	hash, err := CWDHash(cwd)
	if err != nil {
		return CrossProfileFound{}, false, err
	}

	var best CrossProfileFound
	var bestMod int64
	found := false

	for _, acct := range accounts {
		dir := filepath.Join(acct.ProfileDir, "projects", hash)
		result, ok, err := findLatestInDir(dir)
		if err != nil || !ok {
			continue
		}
		info, err := os.Stat(result.Path)
		if err != nil {
			continue
		}
		mod := info.ModTime().UnixNano()
		if !found || mod > bestMod {
			found = true
			bestMod = mod
			best = CrossProfileFound{Found: result, Account: acct.Name, Hash: hash}
		}
	}

	return best, found, nil
}

// Migrate copies a session's transcript, and its sidecar directory if
// present, from one profile to another. It returns an error if the source
// transcript does not exist. Both profile directories are trusted inputs;
// cwdHash and sessionID must already be validated by the caller.
func Migrate(fromProfile, toProfile, cwdHash, sessionID string) error {
	if !ValidateSessionID(sessionID) {
		return fmt.Errorf("invalid session ID")
	}

	srcDir := filepath.Join(fromProfile, "projects", cwdHash)
	dstDir := filepath.Join(toProfile, "projects", cwdHash)

	srcFile := filepath.Join(srcDir, sessionID+".jsonl")
	if _, err := os.Stat(srcFile); err != nil {
		return fmt.Errorf("session file not found: %w", err)
	}

	if err := os.MkdirAll(dstDir, 0700); err != nil {
		return fmt.Errorf("create destination project dir: %w", err)
	}

	dstFile := filepath.Join(dstDir, sessionID+".jsonl")
	if err := copyFile(srcFile, dstFile); err != nil {
		return fmt.Errorf("copy transcript: %w", err)
	}

	srcSidecar := filepath.Join(srcDir, sessionID)
	if info, err := os.Stat(srcSidecar); err == nil && info.IsDir() {
		dstSidecar := filepath.Join(dstDir, sessionID)
		if err := copyDir(srcSidecar, dstSidecar); err != nil {
			return fmt.Errorf("copy sidecar: %w", err)
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0700)
		}
		return copyFile(path, target)
	})
}
