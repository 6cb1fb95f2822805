// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hook

import (
	"testing"

	"github.com/hoffctl/hoff/internal/chatapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackChannelCreatorCreatesInvitesAndWelcomes(t *testing.T) {
	chat := chatapi.NewFake()
	c := &SlackChannelCreator{
		Chat:   chat,
		Config: ChannelCreatorConfig{InviteUserID: "U1", WelcomeText: "hi there"},
	}

	channelID, name, err := c.CreateChannel("My Project!", "/home/alice/proj")
	require.NoError(t, err)
	assert.Equal(t, "my-project", name)
	assert.Contains(t, chat.Channels[channelID], "U1")
	assert.Len(t, chat.Messages, 1)
}

func TestSlackChannelCreatorSanitizesBlankProject(t *testing.T) {
	chat := chatapi.NewFake()
	c := &SlackChannelCreator{Chat: chat}

	_, name, err := c.CreateChannel("", "/tmp")
	require.NoError(t, err)
	assert.Equal(t, "session", name)
}

func TestChannelNameCollapsesDisallowedRuns(t *testing.T) {
	assert.Equal(t, "foo-bar", channelName("Foo   Bar"))
	assert.Equal(t, "foo_bar", channelName("Foo_Bar"))
}
