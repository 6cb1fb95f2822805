// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command hoff-relay runs the chat relay as a long-lived background
// process: it consumes socket-mode events and relays messages into the
// terminal multiplexer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hoffctl/hoff/internal/channelmap"
	"github.com/hoffctl/hoff/internal/chatapi"
	"github.com/hoffctl/hoff/internal/config"
	"github.com/hoffctl/hoff/internal/platform"
	"github.com/hoffctl/hoff/internal/relay"
	"github.com/hoffctl/hoff/internal/tmux"
)

// webhookLogMaxMB and webhookLogBackups implement spec.md's rotation policy
// for the relay daemon's log file: rotate at 5 MiB, keep one backup.
const (
	webhookLogMaxMB   = 5
	webhookLogBackups = 1
)

func main() {
	var configDir string
	flag.StringVar(&configDir, "config-dir", "", "Path to the hoff config directory (default: ~/.hoff)")
	flag.Parse()

	if configDir == "" {
		dir, err := platform.ConfigDir()
		if err != nil {
			log.Fatalf("[hoff-relay] resolve config dir: %v", err)
		}
		configDir = dir
	}

	if err := config.LoadEnvFile(filepath.Join(configDir, ".env")); err != nil {
		log.Fatalf("[hoff-relay] load .env: %v", err)
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(configDir, "logs", "webhook.log"),
		MaxSize:    webhookLogMaxMB,
		MaxBackups: webhookLogBackups,
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))

	cfg, err := config.LoadWithDefaults(filepath.Join(configDir, "relay.hjson"))
	if err != nil {
		log.Fatalf("[hoff-relay] load relay config: %v", err)
	}

	appToken := os.Getenv("HOFF_SLACK_APP_TOKEN")
	botToken := os.Getenv("HOFF_SLACK_BOT_TOKEN")
	if appToken == "" || botToken == "" {
		log.Fatalf("[hoff-relay] HOFF_SLACK_APP_TOKEN and HOFF_SLACK_BOT_TOKEN must both be set")
	}

	r := &relay.Relay{
		Chat:     chatapi.NewSlackClient(botToken),
		Channels: channelmap.New(filepath.Join(configDir, "data", "channel-map.json")),
		Tmux:     &tmux.RealExecutor{},
		Config: relay.Config{
			AllowedUsers:       cfg.AllowedUsers,
			DedicatedChannel:   cfg.DedicatedChannel,
			DefaultTmuxSession: cfg.DefaultTmuxSession,
			WelcomeText:        cfg.WelcomeText,
		},
	}

	daemon := relay.NewDaemon(r, appToken, botToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[hoff-relay] connecting")
	if err := daemon.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "[hoff-relay] %v\n", err)
		os.Exit(1)
	}
	log.Printf("[hoff-relay] shutting down")
}
