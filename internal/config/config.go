// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the relay daemon's optional HJSON settings file and
// scans a .env file for ambient credentials.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hjson/hjson-go/v4"
)

// Config is the relay daemon's own settings. None of these are required by
// the account registry or the swap loop; the registry's config.json is
// loaded separately by internal/registry.
type Config struct {
	AllowedUsers       []string `json:"allowed_users"`
	DedicatedChannel   string   `json:"dedicated_channel"`
	DefaultTmuxSession string   `json:"default_tmux_session"`
	WelcomeText        string   `json:"welcome_text"`
	InviteUserID       string   `json:"invite_user_id"`
}

// Load reads and parses an HJSON config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return Config{}, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadWithDefaults loads path, or returns a zero-value Config with
// defaults applied if path does not exist — the relay daemon's settings
// file is entirely optional.
func LoadWithDefaults(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return applyDefaults(Config{}), nil
	}

	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	if cfg.WelcomeText == "" {
		cfg.WelcomeText = "Session started. Reply here to send input, or use !help for commands."
	}
	return cfg
}
