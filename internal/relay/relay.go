// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package relay consumes chat-system events over a socket-mode connection
// and relays messages into a terminal multiplexer, answering the built-in
// chat commands along the way. Progress, completion, waiting-for-input, and
// swap notices are posted by internal/hook, not by this package.
package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hoffctl/hoff/internal/chatapi"
	"github.com/hoffctl/hoff/internal/channelmap"
	"github.com/hoffctl/hoff/internal/tmux"
)

// enterKeyDelay separates the literal text send from the Enter keystroke
// so the child never observes interleaved partial input, while still
// appearing atomic to the user.
const enterKeyDelay = 300 * time.Millisecond

const statusCaptureLimit = 3900

// Config is the relay daemon's own settings, loaded from the relay's
// optional HJSON file.
type Config struct {
	AllowedUsers       []string
	DedicatedChannel   string
	DefaultTmuxSession string
	WelcomeText        string
}

// Relay wires a chat client, the channel map, and a tmux executor.
type Relay struct {
	Chat     chatapi.Client
	Channels *channelmap.Map
	Tmux     tmux.Executor
	Config   Config
}

// MessageEvent is the subset of an incoming chat event the relay cares
// about, normalized from either a channel message or an app mention (with
// the mention text already stripped).
type MessageEvent struct {
	ChannelID    string
	UserID       string
	Text         string
	MessageTS    string
	IsDirect     bool
	IsAppMention bool
}

// HandleMessage dispatches one inbound chat event.
func (r *Relay) HandleMessage(ctx context.Context, evt MessageEvent) error {
	entry, ok, err := r.Channels.GetByChannelID(evt.ChannelID)
	if err != nil {
		return err
	}

	if ok && entry.Active {
		if !r.userAllowed(evt.UserID) {
			return nil
		}
		if handled, err := r.dispatchCommand(ctx, entry, evt); handled {
			return err
		}
		return r.relayAndMarkTyping(ctx, entry, evt)
	}

	if (evt.IsDirect || (r.Config.DedicatedChannel != "" && evt.ChannelID == r.Config.DedicatedChannel)) && r.Config.DefaultTmuxSession != "" {
		return r.RelayToMultiplexer(ctx, r.Config.DefaultTmuxSession, evt.Text)
	}

	return nil
}

func (r *Relay) userAllowed(userID string) bool {
	if len(r.Config.AllowedUsers) == 0 {
		return true
	}
	for _, u := range r.Config.AllowedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// dispatchCommand handles the built-in !stop/!status/!archive/!help
// commands. It returns handled=true if evt.Text was a recognized command.
func (r *Relay) dispatchCommand(ctx context.Context, entry channelmap.Entry, evt MessageEvent) (bool, error) {
	switch strings.TrimSpace(evt.Text) {
	case "!stop":
		return true, r.Tmux.SendKeys(ctx, entry.TmuxSession, "C-c", false)
	case "!status":
		return true, r.postStatus(ctx, entry)
	case "!archive":
		return true, r.archiveChannel(entry)
	case "!help":
		return true, r.postHelp(entry)
	default:
		return false, nil
	}
}

func (r *Relay) postStatus(ctx context.Context, entry channelmap.Entry) error {
	pane, err := r.Tmux.CapturePane(ctx, entry.TmuxSession, false)
	if err != nil {
		return err
	}
	text := string(pane)
	runes := []rune(text)
	if len(runes) > statusCaptureLimit {
		text = string(runes[len(runes)-statusCaptureLimit:])
	}
	_, err = r.Chat.PostMessage(entry.ChannelID, "```\n"+text+"\n```")
	return err
}

func (r *Relay) archiveChannel(entry channelmap.Entry) error {
	if err := r.Chat.ArchiveChannel(entry.ChannelID); err != nil {
		return err
	}
	return r.Channels.Archive(entry.ChannelID)
}

func (r *Relay) postHelp(entry channelmap.Entry) error {
	help := "*Commands*\n!stop: interrupt the session\n!status: show the current pane\n!archive: archive this channel\n!help: show this message"
	_, err := r.Chat.PostMessage(entry.ChannelID, help)
	return err
}

// relayAndMarkTyping sets a typing reaction on the user's message and
// relays the text into the multiplexer.
func (r *Relay) relayAndMarkTyping(ctx context.Context, entry channelmap.Entry, evt MessageEvent) error {
	if evt.MessageTS != "" {
		_ = r.Channels.SetTyping(entry.SessionID, evt.MessageTS)
		_ = r.Chat.AddReaction(entry.ChannelID, evt.MessageTS, "eyes")
	}
	return r.RelayToMultiplexer(ctx, entry.TmuxSession, evt.Text)
}

// RelayToMultiplexer truncates text to RelayCharLimit characters, sends it
// with a literal-text send so the transport never interprets the bytes as
// key sequences, then after enterKeyDelay sends a single Enter keystroke.
func (r *Relay) RelayToMultiplexer(ctx context.Context, tmuxSession, text string) error {
	runes := []rune(text)
	if len(runes) > RelayCharLimit {
		text = string(runes[:RelayCharLimit])
	}

	if err := r.Tmux.SendText(ctx, tmuxSession, text); err != nil {
		return fmt.Errorf("relay text: %w", err)
	}

	select {
	case <-time.After(enterKeyDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return r.Tmux.SendKeys(ctx, tmuxSession, "Enter", false)
}

// Post sends text to the session's channel, chunking at the nearest
// newline under PostChunkLimit characters.
func (r *Relay) Post(sessionID, text string) error {
	entry, ok, err := r.Channels.Get(sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("channel_not_found")
	}
	for _, chunk := range ChunkAtNewline(text, PostChunkLimit) {
		if _, err := r.Chat.PostMessage(entry.ChannelID, chunk); err != nil {
			return err
		}
	}
	return nil
}
