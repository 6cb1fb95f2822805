// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package chatapi wraps the chat-system calls the relay and hook
// entrypoint both need: posting, editing, and deleting messages; reacting;
// and channel lifecycle. Both callers depend on the Client interface, not
// the concrete Slack-backed implementation, so tests can substitute a
// fake.
package chatapi

import (
	"fmt"

	"github.com/slack-go/slack"
)

// Client is the chat-system surface this supervisor consumes.
type Client interface {
	PostMessage(channelID, text string) (ts string, err error)
	PostThreadReply(channelID, parentTS, text string) (ts string, err error)
	UpdateMessage(channelID, ts, text string) error
	DeleteMessage(channelID, ts string) error
	AddReaction(channelID, ts, emoji string) error
	RemoveReaction(channelID, ts, emoji string) error
	CreateChannel(name string) (channelID string, err error)
	SetTopic(channelID, topic string) error
	InviteUser(channelID, userID string) error
	ArchiveChannel(channelID string) error
}

// SlackClient is the production Client backed by slack-go.
type SlackClient struct {
	api *slack.Client
}

// NewSlackClient returns a SlackClient authenticated with token.
func NewSlackClient(token string) *SlackClient {
	return &SlackClient{api: slack.New(token)}
}

func (c *SlackClient) PostMessage(channelID, text string) (string, error) {
	_, ts, err := c.api.PostMessage(channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", wrapSlackErr(err)
	}
	return ts, nil
}

func (c *SlackClient) PostThreadReply(channelID, parentTS, text string) (string, error) {
	_, ts, err := c.api.PostMessage(channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(parentTS),
	)
	if err != nil {
		return "", wrapSlackErr(err)
	}
	return ts, nil
}

func (c *SlackClient) UpdateMessage(channelID, ts, text string) error {
	_, _, _, err := c.api.UpdateMessage(channelID, ts, slack.MsgOptionText(text, false))
	return wrapSlackErr(err)
}

func (c *SlackClient) DeleteMessage(channelID, ts string) error {
	_, _, err := c.api.DeleteMessage(channelID, ts)
	return wrapSlackErr(err)
}

func (c *SlackClient) AddReaction(channelID, ts, emoji string) error {
	return wrapSlackErr(c.api.AddReaction(emoji, slack.NewRefToMessage(channelID, ts)))
}

func (c *SlackClient) RemoveReaction(channelID, ts, emoji string) error {
	return wrapSlackErr(c.api.RemoveReaction(emoji, slack.NewRefToMessage(channelID, ts)))
}

func (c *SlackClient) CreateChannel(name string) (string, error) {
	channel, err := c.api.CreateConversation(slack.CreateConversationParams{ChannelName: name})
	if err != nil {
		if err.Error() == "name_taken" {
			channel, err = c.api.CreateConversation(slack.CreateConversationParams{ChannelName: name + "-2"})
			if err != nil {
				return "", wrapSlackErr(err)
			}
			return channel.ID, nil
		}
		return "", wrapSlackErr(err)
	}
	return channel.ID, nil
}

func (c *SlackClient) SetTopic(channelID, topic string) error {
	_, err := c.api.SetTopicOfConversation(channelID, topic)
	return wrapSlackErr(err)
}

func (c *SlackClient) InviteUser(channelID, userID string) error {
	_, err := c.api.InviteUsersToConversation(channelID, userID)
	return wrapSlackErr(err)
}

func (c *SlackClient) ArchiveChannel(channelID string) error {
	return wrapSlackErr(c.api.ArchiveConversation(channelID))
}

func wrapSlackErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("chat api: %w", err)
}
