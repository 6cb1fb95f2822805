// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hook implements the stateless worker the child invokes on
// lifecycle events. It reads its configuration from the environment and
// communicates only through the filesystem and the chat-system API — it
// never shares in-memory state with the relay daemon.
package hook

import (
	"fmt"
	"strings"
	"time"

	"github.com/hoffctl/hoff/internal/chatapi"
	"github.com/hoffctl/hoff/internal/channelmap"
	"github.com/hoffctl/hoff/internal/progress"
	"golang.org/x/text/unicode/norm"
)

// Kind is the closed set of lifecycle events the child dispatches.
type Kind string

const (
	SessionStart    Kind = "session-start"
	ToolUse         Kind = "tool-use"
	WaitingForInput Kind = "waiting-for-input"
	Completed       Kind = "completed"
	AccountSwitch   Kind = "account-switch"
	SleepUntilReset Kind = "sleep-until-reset"
	SleepWake       Kind = "sleep-wake"
)

// pausesForUserTools is the closed set of tool names that, when they
// appear in a waiting-for-input event, indicate the child is genuinely
// blocked on the user rather than merely idle between turns.
var pausesForUserTools = map[string]bool{
	"AskUserQuestion": true,
	"ExitPlanMode":    true,
}

const (
	waitingForInputTruncateChars = 39000
	completedTruncateChars       = 39500
)

// Context is the JSON payload the child sends on stdin.
type Context struct {
	SessionID      string            `json:"session_id"`
	CWD            string            `json:"cwd"`
	TranscriptPath string            `json:"transcript_path"`
	TmuxSession    string            `json:"tmux_session"`
	Project        string            `json:"project"`
	ToolName       string            `json:"tool_name,omitempty"`
	ToolDetail     string            `json:"tool_detail,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Dispatcher handles one lifecycle event.
type Dispatcher struct {
	Chat     chatapi.Client
	Channels *channelmap.Map
	Progress *progress.Store
	Creator  channelmap.ChannelCreator
}

// Dispatch routes ctx to the handler for kind. This is a switch over a
// small closed set of event names, modeled as a tagged variant rather than
// dynamic dispatch.
func (d *Dispatcher) Dispatch(kind Kind, ctx Context) error {
	switch kind {
	case SessionStart:
		return d.handleSessionStart(ctx)
	case ToolUse:
		return d.handleToolUse(ctx)
	case WaitingForInput:
		return d.handleWaitingForInput(ctx)
	case Completed:
		return d.handleCompleted(ctx)
	case AccountSwitch, SleepUntilReset, SleepWake:
		return d.handleNotice(kind, ctx)
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
}

func (d *Dispatcher) handleSessionStart(ctx Context) error {
	if ctx.TmuxSession != "" {
		if _, found, err := d.Channels.ReuseForTmux(ctx.SessionID, ctx.TmuxSession); err != nil {
			return err
		} else if found {
			return nil
		}
	}
	_, err := d.Channels.GetOrCreate(ctx.SessionID, ctx.Project, ctx.CWD, ctx.TmuxSession, d.Creator)
	return err
}

func (d *Dispatcher) handleToolUse(ctx Context) error {
	entry, ok, err := d.Channels.Get(ctx.SessionID)
	if err != nil || !ok {
		return err
	}

	_, due, err := d.Progress.Append(ctx.SessionID, progress.Event{
		Type:   ctx.ToolName,
		Detail: ctx.ToolDetail,
		TS:     time.Now(),
	})
	if err != nil || !due {
		return err
	}

	text, err := d.Progress.Flush(ctx.SessionID)
	if err != nil {
		return err
	}
	return d.updateProgress(entry, text)
}

// updateProgress posts a new progress message, or edits the existing one
// in place; on message-not-found it re-posts fresh.
func (d *Dispatcher) updateProgress(entry channelmap.Entry, text string) error {
	if entry.ProgressMessageTS == "" {
		ts, err := d.Chat.PostMessage(entry.ChannelID, text)
		if err != nil {
			return err
		}
		return d.Channels.SetProgressMessage(entry.SessionID, ts)
	}

	if err := d.Chat.UpdateMessage(entry.ChannelID, entry.ProgressMessageTS, text); err != nil {
		if strings.Contains(err.Error(), "message_not_found") {
			ts, postErr := d.Chat.PostMessage(entry.ChannelID, text)
			if postErr != nil {
				return postErr
			}
			return d.Channels.SetProgressMessage(entry.SessionID, ts)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) handleWaitingForInput(ctx Context) error {
	if !pausesForUserTools[ctx.ToolName] {
		return nil
	}

	entry, ok, err := d.Channels.Get(ctx.SessionID)
	if err != nil || !ok {
		return err
	}

	if entry.ProgressMessageTS != "" {
		_ = d.Chat.DeleteMessage(entry.ChannelID, entry.ProgressMessageTS)
		if err := d.Channels.ClearProgress(ctx.SessionID); err != nil {
			return err
		}
	}

	text, err := readLastAssistantText(ctx.TranscriptPath)
	if err != nil {
		return err
	}
	text = MarkdownToChatMarkup(text)
	text = TruncateChars(text, waitingForInputTruncateChars)

	_, err = d.Chat.PostMessage(entry.ChannelID, text)
	return err
}

func (d *Dispatcher) handleCompleted(ctx Context) error {
	entry, ok, err := d.Channels.Get(ctx.SessionID)
	if err != nil || !ok {
		return err
	}

	if entry.PendingMessageTS != "" {
		_ = d.Chat.RemoveReaction(entry.ChannelID, entry.PendingMessageTS, "eyes")
		if err := d.Channels.ClearTyping(ctx.SessionID); err != nil {
			return err
		}
	}
	if entry.ProgressMessageTS != "" {
		_ = d.Chat.DeleteMessage(entry.ChannelID, entry.ProgressMessageTS)
		if err := d.Channels.ClearProgress(ctx.SessionID); err != nil {
			return err
		}
	}

	turn, err := readLastTurn(ctx.TranscriptPath)
	if err != nil {
		return err
	}

	text := MarkdownToChatMarkup(turn.AssistantText)
	truncated := TruncateChars(text, completedTruncateChars)

	ts, err := d.Chat.PostMessage(entry.ChannelID, truncated)
	if err != nil {
		return err
	}

	if len(truncated) < len(text) {
		_, err = d.Chat.PostThreadReply(entry.ChannelID, ts, text)
	}
	return err
}

func (d *Dispatcher) handleNotice(kind Kind, ctx Context) error {
	entry, ok, err := d.Channels.Get(ctx.SessionID)
	if err != nil || !ok {
		return err
	}
	_, err = d.Chat.PostMessage(entry.ChannelID, formatNotice(kind, ctx))
	return err
}

func formatNotice(kind Kind, ctx Context) string {
	switch kind {
	case AccountSwitch:
		return fmt.Sprintf(":twisted_rightwards_arrows: switched accounts (%s)", ctx.Extra["reason"])
	case SleepUntilReset:
		return fmt.Sprintf(":zzz: every account is near its limit, sleeping until %s", ctx.Extra["wake_at"])
	case SleepWake:
		return ":wave: back from sleep, resuming"
	default:
		return string(kind)
	}
}

// MarkdownToChatMarkup converts the child's flavored markdown output to
// the chat system's message markup (bold/italic/code fences pass through
// unchanged; headings become bold lines, since the chat system has no
// heading syntax).
func MarkdownToChatMarkup(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		stripped := strings.TrimLeft(line, "#")
		if stripped == line {
			continue // no leading '#', not a heading
		}
		heading := strings.TrimSpace(stripped)
		if heading != "" {
			lines[i] = "*" + heading + "*"
		}
	}
	return strings.Join(lines, "\n")
}

// TruncateChars truncates s to at most limit characters (runes, not
// bytes), so a multi-byte rune at the cut boundary is never split.
func TruncateChars(s string, limit int) string {
	normalized := norm.NFC.String(s)
	runes := []rune(normalized)
	if len(runes) <= limit {
		return normalized
	}
	return string(runes[:limit])
}
