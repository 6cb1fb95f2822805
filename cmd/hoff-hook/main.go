// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command hoff-hook is the stateless worker the child invokes on
// lifecycle events (session-start, tool-use, waiting-for-input,
// completed, account-switch, sleep-until-reset, sleep-wake). It reads one
// JSON context object from stdin and exits.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/hoffctl/hoff/internal/channelmap"
	"github.com/hoffctl/hoff/internal/chatapi"
	"github.com/hoffctl/hoff/internal/config"
	"github.com/hoffctl/hoff/internal/hook"
	"github.com/hoffctl/hoff/internal/platform"
	"github.com/hoffctl/hoff/internal/progress"
)

// stdinContext is the wire shape of one hook invocation: the event kind
// plus the context payload.
type stdinContext struct {
	Kind hook.Kind `json:"kind"`
	hook.Context
}

func main() {
	var configDir string
	flag.StringVar(&configDir, "config-dir", "", "Path to the hoff config directory (default: ~/.hoff)")
	flag.Parse()

	if configDir == "" {
		dir, err := platform.ConfigDir()
		if err != nil {
			log.Fatalf("[hoff-hook] resolve config dir: %v", err)
		}
		configDir = dir
	}

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[hoff-hook] read stdin: %v\n", err)
		os.Exit(1)
	}

	var in stdinContext
	if err := json.Unmarshal(raw, &in); err != nil {
		fmt.Fprintf(os.Stderr, "[hoff-hook] parse stdin: %v\n", err)
		os.Exit(1)
	}

	if err := config.LoadEnvFile(filepath.Join(configDir, ".env")); err != nil {
		fmt.Fprintf(os.Stderr, "[hoff-hook] load .env: %v\n", err)
		os.Exit(1)
	}

	botToken := os.Getenv("HOFF_SLACK_BOT_TOKEN")
	if botToken == "" {
		// No chat integration configured: nothing to dispatch to.
		return
	}

	cfg, err := config.LoadWithDefaults(filepath.Join(configDir, "relay.hjson"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "[hoff-hook] load relay config: %v\n", err)
		os.Exit(1)
	}

	chat := chatapi.NewSlackClient(botToken)
	dispatcher := &hook.Dispatcher{
		Chat:     chat,
		Channels: channelmap.New(filepath.Join(configDir, "data", "channel-map.json")),
		Progress: progress.NewStore(filepath.Join(configDir, "data", "progress")),
		Creator: &hook.SlackChannelCreator{
			Chat: chat,
			Config: hook.ChannelCreatorConfig{
				InviteUserID: cfg.InviteUserID,
				WelcomeText:  cfg.WelcomeText,
			},
		},
	}

	if err := dispatcher.Dispatch(in.Kind, in.Context); err != nil {
		fmt.Fprintf(os.Stderr, "[hoff-hook] dispatch %s: %v\n", in.Kind, err)
		os.Exit(1)
	}
}
