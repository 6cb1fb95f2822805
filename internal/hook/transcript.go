// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package hook

import (
	"bufio"
	"encoding/json"
	"os"
)

// transcriptLine is the subset of one JSONL transcript line the hook
// entrypoint reads. The hook entrypoint only ever reads transcripts to
// render a notification — it never rewrites or reshapes them.
type transcriptLine struct {
	Type    string `json:"type"`
	Message struct {
		Role    string         `json:"role"`
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// readLastAssistantText returns the text of the last assistant text block
// in the transcript at path.
func readLastAssistantText(path string) (string, error) {
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Type != "assistant" {
			continue
		}
		for j := len(lines[i].Message.Content) - 1; j >= 0; j-- {
			if lines[i].Message.Content[j].Type == "text" {
				return lines[i].Message.Content[j].Text, nil
			}
		}
	}
	return "", nil
}

// lastTurn is the result of walking a transcript back to the most recent
// user message: the tool names invoked since, and the final assistant
// text.
type lastTurn struct {
	ToolNames     []string
	AssistantText string
}

// readLastTurn walks the transcript backward from the end to the last
// user message, collecting tool_use block names and the final assistant
// text block encountered along the way.
func readLastTurn(path string) (lastTurn, error) {
	lines, err := readLines(path)
	if err != nil {
		return lastTurn{}, err
	}

	var turn lastTurn
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Type == "user" {
			break
		}
		if lines[i].Type != "assistant" {
			continue
		}
		for _, block := range lines[i].Message.Content {
			switch block.Type {
			case "text":
				if turn.AssistantText == "" {
					turn.AssistantText = block.Text
				}
			case "tool_use":
				turn.ToolNames = append([]string{block.Name}, turn.ToolNames...)
			}
		}
	}
	return turn, nil
}

func readLines(path string) ([]transcriptLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []transcriptLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line transcriptLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
