// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hoffctl/hoff/internal/platform"
	"github.com/hoffctl/hoff/internal/registry"
)

// runAccounts implements the supplemented `hoff accounts` subcommand
// surface over the account registry: list, add, remove, set-priority,
// clear-priority.
func runAccounts(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hoff accounts <list|add|remove|set-priority|clear-priority> [args...]")
	}

	configDir, err := platform.ConfigDir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	reg := registry.New(filepath.Join(configDir, "config.json"))

	switch args[0] {
	case "list":
		return accountsList(reg)
	case "add":
		return accountsAdd(reg, args[1:])
	case "remove":
		return accountsRemove(reg, args[1:])
	case "set-priority":
		return accountsSetPriority(reg, args[1:])
	case "clear-priority":
		return accountsClearPriority(reg, args[1:])
	default:
		return fmt.Errorf("unknown accounts subcommand %q", args[0])
	}
}

func accountsList(reg *registry.Registry) error {
	accounts, err := reg.Load()
	if err != nil {
		return err
	}
	for _, a := range registry.Sorted(accounts) {
		priority := "-"
		if a.Priority != nil {
			priority = strconv.Itoa(*a.Priority)
		}
		fmt.Printf("%-20s priority=%-5s profile=%s\n", a.Name, priority, a.ProfileDir)
	}
	return nil
}

func accountsAdd(reg *registry.Registry, args []string) error {
	fs := flag.NewFlagSet("accounts add", flag.ExitOnError)
	profileDir := fs.String("profile-dir", "", "Profile directory for this account (required)")
	priority := fs.Int("priority", -1, "Optional priority (lower is preferred)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: hoff accounts add --profile-dir <dir> [--priority N] <name>")
	}
	if *profileDir == "" {
		return fmt.Errorf("--profile-dir is required")
	}

	account := registry.Account{Name: fs.Arg(0), ProfileDir: *profileDir}
	if *priority >= 0 {
		p := *priority
		account.Priority = &p
	}
	return reg.Add(account)
}

func accountsRemove(reg *registry.Registry, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hoff accounts remove <name>")
	}
	return reg.Remove(args[0])
}

func accountsSetPriority(reg *registry.Registry, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: hoff accounts set-priority <name> <priority>")
	}
	priority, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid priority %q: %w", args[1], err)
	}
	return reg.SetPriority(args[0], priority)
}

func accountsClearPriority(reg *registry.Registry, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hoff accounts clear-priority <name>")
	}
	return reg.ClearPriority(args[0])
}
