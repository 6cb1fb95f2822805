// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command hoff is the interactive supervisor: it runs the swap loop for
// one child session, selecting an account, spawning the child, detecting
// rate limits, migrating the session, and resuming under the next
// account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hoffctl/hoff/internal/channelmap"
	"github.com/hoffctl/hoff/internal/chatapi"
	"github.com/hoffctl/hoff/internal/child"
	"github.com/hoffctl/hoff/internal/config"
	"github.com/hoffctl/hoff/internal/credstore"
	"github.com/hoffctl/hoff/internal/hook"
	"github.com/hoffctl/hoff/internal/platform"
	"github.com/hoffctl/hoff/internal/progress"
	"github.com/hoffctl/hoff/internal/registry"
	"github.com/hoffctl/hoff/internal/swaploop"
	"github.com/hoffctl/hoff/internal/usage"
)

var version = "0.1"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "accounts" {
		if err := runAccounts(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "[hoff] %v\n", err)
			os.Exit(1)
		}
		return
	}

	var (
		configDir   string
		account     string
		remoteMode  bool
		maxSwaps    int
		showVersion bool
	)

	flag.StringVar(&configDir, "config-dir", "", "Path to the hoff config directory (default: ~/.hoff)")
	flag.StringVar(&account, "account", "", "Initial account name (default: the registry's default account)")
	flag.BoolVar(&remoteMode, "remote", false, "Run in remote mode: notify the chat relay instead of prompting interactively")
	flag.IntVar(&maxSwaps, "max-swaps", 0, "Max rate-limit swaps before giving up (default: max(5, 2*accounts))")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.Parse()

	if showVersion {
		fmt.Printf("hoff %s\n", version)
		return
	}

	if configDir == "" {
		dir, err := platform.ConfigDir()
		if err != nil {
			log.Fatalf("[hoff] resolve config dir: %v", err)
		}
		configDir = dir
	}

	if err := config.LoadEnvFile(filepath.Join(configDir, ".env")); err != nil {
		log.Fatalf("[hoff] load .env: %v", err)
	}

	reg := registry.New(filepath.Join(configDir, "config.json"))
	defaultProfile, err := platform.DefaultProfileDir()
	if err != nil {
		log.Fatalf("[hoff] resolve default profile dir: %v", err)
	}
	if err := reg.EnsureDefault(defaultProfile); err != nil {
		log.Fatalf("[hoff] ensure default account: %v", err)
	}

	if account == "" {
		account = "default"
	}

	creds, err := credstore.New(defaultProfile)
	if err != nil {
		log.Fatalf("[hoff] open credential store: %v", err)
	}

	channels := channelmap.New(filepath.Join(configDir, "data", "channel-map.json"))

	loop := &swaploop.Loop{
		Registry:   reg,
		Creds:      creds,
		Usage:      usage.NewClient(),
		Supervisor: &child.Supervisor{},
		Channels:   channels,
		CWD:        mustGetwd(),
		Notifier:   remoteNotifier(remoteMode, configDir, channels),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCode, err := loop.RunWithOptions(ctx, account, flag.Args(), swaploop.Options{
		MaxSwaps:   maxSwaps,
		RemoteMode: remoteMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[hoff] %v\n", err)
	}
	os.Exit(exitCode)
}

// remoteNotifier builds the swap loop's chat notifier when running in
// remote mode; it returns nil in interactive mode, where swap/sleep
// notices are unnecessary because the user is watching the terminal.
func remoteNotifier(remoteMode bool, configDir string, channels *channelmap.Map) swaploop.Notifier {
	if !remoteMode {
		return nil
	}
	botToken := os.Getenv("HOFF_SLACK_BOT_TOKEN")
	if botToken == "" {
		log.Printf("[hoff] remote mode requested but HOFF_SLACK_BOT_TOKEN is unset; swap notices will not be posted")
		return nil
	}

	cfg, err := config.LoadWithDefaults(filepath.Join(configDir, "relay.hjson"))
	if err != nil {
		log.Printf("[hoff] load relay config: %v", err)
	}

	chat := chatapi.NewSlackClient(botToken)
	return &hook.Dispatcher{
		Chat:     chat,
		Channels: channels,
		Progress: progress.NewStore(filepath.Join(configDir, "data", "progress")),
		Creator: &hook.SlackChannelCreator{
			Chat: chat,
			Config: hook.ChannelCreatorConfig{
				InviteUserID: cfg.InviteUserID,
				WelcomeText:  cfg.WelcomeText,
			},
		},
	}
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("[hoff] get working directory: %v", err)
	}
	return wd
}
