// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hook

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hoffctl/hoff/internal/chatapi"
)

// channelNameDisallowed matches characters a chat-system channel name
// cannot contain; project/cwd-derived names are sanitized through it.
var channelNameDisallowed = regexp.MustCompile(`[^a-z0-9_-]+`)

// ChannelCreatorConfig is the subset of relay-daemon settings the channel
// creator needs to finish setting up a freshly created channel.
type ChannelCreatorConfig struct {
	InviteUserID string
	WelcomeText  string
}

// SlackChannelCreator implements channelmap.ChannelCreator against a real
// chat client: create the channel, set its topic to the working directory,
// invite the configured user, and post a welcome message.
type SlackChannelCreator struct {
	Chat   chatapi.Client
	Config ChannelCreatorConfig
}

// CreateChannel satisfies channelmap.ChannelCreator.
func (c *SlackChannelCreator) CreateChannel(project, cwd string) (string, string, error) {
	name := channelName(project)

	channelID, err := c.Chat.CreateChannel(name)
	if err != nil {
		return "", "", fmt.Errorf("create channel %q: %w", name, err)
	}

	if cwd != "" {
		_ = c.Chat.SetTopic(channelID, cwd)
	}

	if c.Config.InviteUserID != "" {
		_ = c.Chat.InviteUser(channelID, c.Config.InviteUserID)
	}

	if c.Config.WelcomeText != "" {
		if _, err := c.Chat.PostMessage(channelID, c.Config.WelcomeText); err != nil {
			return "", "", fmt.Errorf("post welcome message: %w", err)
		}
	}

	return channelID, name, nil
}

// channelName derives a chat-system-safe channel name from a project name,
// lowercasing it and collapsing any disallowed run of characters to a
// single hyphen.
func channelName(project string) string {
	lower := strings.ToLower(project)
	if lower == "" {
		lower = "session"
	}
	sanitized := channelNameDisallowed.ReplaceAllString(lower, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "session"
	}
	return sanitized
}
