// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Daemon runs the relay as a long-lived socket-mode consumer.
type Daemon struct {
	Relay  *Relay
	Client *socketmode.Client
}

// NewDaemon opens a socket-mode connection authenticated with appToken and
// botToken.
func NewDaemon(relay *Relay, appToken, botToken string) *Daemon {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	client := socketmode.New(api)
	return &Daemon{Relay: relay, Client: client}
}

// Run consumes socket-mode events until ctx is cancelled. Event handling
// is cooperative: each inbound event is processed serially within this one
// logical consumer.
func (d *Daemon) Run(ctx context.Context) error {
	go func() {
		for evt := range d.Client.Events {
			d.handle(ctx, evt)
		}
	}()
	return d.Client.RunContext(ctx)
}

func (d *Daemon) handle(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		d.Client.Ack(*evt.Request)
		d.handleEventsAPI(ctx, apiEvent)
	case socketmode.EventTypeConnecting, socketmode.EventTypeConnected:
		// no-op: connection lifecycle events need no handling
	default:
	}
}

func (d *Daemon) handleEventsAPI(ctx context.Context, apiEvent slackevents.EventsAPIEvent) {
	inner := apiEvent.InnerEvent
	switch ev := inner.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" {
			return
		}
		msgEvt := MessageEvent{
			ChannelID: ev.Channel,
			UserID:    ev.User,
			Text:      ev.Text,
			MessageTS: ev.TimeStamp,
			IsDirect:  ev.ChannelType == "im",
		}
		if err := d.Relay.HandleMessage(ctx, msgEvt); err != nil {
			log.Printf("relay: handling message in %s: %v", ev.Channel, err)
		}
	case *slackevents.AppMentionEvent:
		msgEvt := MessageEvent{
			ChannelID:    ev.Channel,
			UserID:       ev.User,
			Text:         stripMention(ev.Text),
			MessageTS:    ev.TimeStamp,
			IsAppMention: true,
		}
		if err := d.Relay.HandleMessage(ctx, msgEvt); err != nil {
			log.Printf("relay: handling app mention in %s: %v", ev.Channel, err)
		}
	}
}

func stripMention(text string) string {
	if i := strings.IndexByte(text, '>'); i >= 0 {
		return strings.TrimLeft(text[i+1:], " ")
	}
	return text
}
