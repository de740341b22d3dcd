// Copyright 2026 The Stampede Authors
// SPDX-License-Identifier: Apache-2.0

package behavior

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Script describes the idle-behavior content for the fleet: what lines
// to say and how often. Scripts are hand-edited, so the on-disk format
// is JSONC — JSON with comments and trailing commas.
type Script struct {
	// Chat lines are sent as-is on every chat interval.
	Chat []string

	// ChatInterval is the spacing between chat lines. Zero disables
	// chatter.
	ChatInterval time.Duration

	// Moves are movement commands sent on every move interval.
	Moves []string

	// MoveInterval is the spacing between moves. Zero disables
	// movement.
	MoveInterval time.Duration
}

// scriptFile is the on-disk shape. Intervals are duration strings
// ("45s", "2m") for readability.
type scriptFile struct {
	Chat         []string `json:"chat"`
	ChatInterval string   `json:"chat_interval"`
	Moves        []string `json:"moves"`
	MoveInterval string   `json:"move_interval"`
}

// LoadScript parses a JSONC behavior script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("behavior: reading script %s: %w", path, err)
	}

	var file scriptFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("behavior: parsing script %s: %w", path, err)
	}

	script := &Script{Chat: file.Chat, Moves: file.Moves}
	if file.ChatInterval != "" {
		script.ChatInterval, err = time.ParseDuration(file.ChatInterval)
		if err != nil {
			return nil, fmt.Errorf("behavior: chat_interval in %s: %w", path, err)
		}
	}
	if file.MoveInterval != "" {
		script.MoveInterval, err = time.ParseDuration(file.MoveInterval)
		if err != nil {
			return nil, fmt.Errorf("behavior: move_interval in %s: %w", path, err)
		}
	}
	return script, nil
}
