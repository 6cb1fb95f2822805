// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package registry persists the set of named accounts the swap loop
// rotates across: a single JSON document, read-modify-write, with atomic
// replacement on every mutation.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// DefaultAccountName is the reserved name for the system-default profile.
const DefaultAccountName = "default"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Account is one named profile.
type Account struct {
	Name       string `json:"name"`
	ProfileDir string `json:"profile_dir"`
	Priority   *int   `json:"priority,omitempty"`
}

// document is the on-disk shape of the registry file.
type document struct {
	Accounts []Account `json:"accounts"`
}

// Registry is a handle to a registry file on disk. It is not safe for
// concurrent use from multiple goroutines without external synchronization
// within a single process; across processes, atomicity is provided by
// read-modify-write-via-rename.
type Registry struct {
	path string
}

// New returns a Registry backed by the JSON document at path.
func New(path string) *Registry {
	return &Registry{path: path}
}

// ValidName reports whether name satisfies the account-name shape
// invariant from the data model.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Load reads the registry document, returning an empty account list if the
// file does not yet exist.
func (r *Registry) Load() ([]Account, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return doc.Accounts, nil
}

// save writes accounts atomically: temp file in the same directory, mode
// 0600, then rename over the destination.
func (r *Registry) save(accounts []Account) error {
	doc := document{Accounts: accounts}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename registry: %w", err)
	}
	return nil
}

// mutate loads the current document, applies fn, and saves the result.
func (r *Registry) mutate(fn func([]Account) ([]Account, error)) error {
	accounts, err := r.Load()
	if err != nil {
		return err
	}
	next, err := fn(accounts)
	if err != nil {
		return err
	}
	return r.save(next)
}

// Add registers a new account. It refuses invalid names and duplicates.
func (r *Registry) Add(a Account) error {
	if !ValidName(a.Name) {
		return fmt.Errorf("invalid account name %q", a.Name)
	}
	return r.mutate(func(accounts []Account) ([]Account, error) {
		for _, existing := range accounts {
			if existing.Name == a.Name {
				return nil, fmt.Errorf("account %q already exists", a.Name)
			}
		}
		return append(accounts, a), nil
	})
}

// Remove deletes the named account. Deleting the default account is
// refused.
func (r *Registry) Remove(name string) error {
	if name == DefaultAccountName {
		return fmt.Errorf("cannot remove the %s account", DefaultAccountName)
	}
	return r.mutate(func(accounts []Account) ([]Account, error) {
		out := make([]Account, 0, len(accounts))
		found := false
		for _, existing := range accounts {
			if existing.Name == name {
				found = true
				continue
			}
			out = append(out, existing)
		}
		if !found {
			return nil, fmt.Errorf("account %q not found", name)
		}
		return out, nil
	})
}

// SetPriority sets the priority of the named account. Lower values are
// preferred by the priority-scoring policy.
func (r *Registry) SetPriority(name string, priority int) error {
	return r.mutate(func(accounts []Account) ([]Account, error) {
		for i := range accounts {
			if accounts[i].Name == name {
				accounts[i].Priority = &priority
				return accounts, nil
			}
		}
		return nil, fmt.Errorf("account %q not found", name)
	})
}

// ClearPriority removes the priority annotation from the named account.
func (r *Registry) ClearPriority(name string) error {
	return r.mutate(func(accounts []Account) ([]Account, error) {
		for i := range accounts {
			if accounts[i].Name == name {
				accounts[i].Priority = nil
				return accounts, nil
			}
		}
		return nil, fmt.Errorf("account %q not found", name)
	})
}

// EnsureDefault inserts the default account pointing at defaultProfileDir
// if it is not already registered and the directory exists on disk. It is
// idempotent.
func (r *Registry) EnsureDefault(defaultProfileDir string) error {
	if _, err := os.Stat(defaultProfileDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return r.mutate(func(accounts []Account) ([]Account, error) {
		for _, existing := range accounts {
			if existing.Name == DefaultAccountName {
				return accounts, nil
			}
		}
		return append(accounts, Account{Name: DefaultAccountName, ProfileDir: defaultProfileDir}), nil
	})
}

// Sorted returns accounts ordered by name, for stable display.
func Sorted(accounts []Account) []Account {
	out := make([]Account, len(accounts))
	copy(out, accounts)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
