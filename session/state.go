package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PageState represents a single page in history. DocID names the loaded
// document that created the entry.
type PageState struct {
	URL   string `json:"url"`
	DocID string `json:"docId,omitempty"`
}

// Buffer represents a browser tab with its history.
type Buffer struct {
	History []PageState `json:"history"` // back stack
	Current PageState   `json:"current"`
	Forward []PageState `json:"forward"` // forward stack
}

// State is the persisted form of a session.
type State struct {
	ID               string   `json:"id"`
	Buffers          []Buffer `json:"buffers"`
	CurrentBufferIdx int      `json:"currentBufferIdx"`
}

// Path returns the default session file path.
func Path() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "quicknav", "session.json"), nil
}

// LoadState reads a session from path.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(s.Buffers) == 0 {
		return nil, errors.New("session has no buffers")
	}
	if s.CurrentBufferIdx < 0 || s.CurrentBufferIdx >= len(s.Buffers) {
		s.CurrentBufferIdx = 0
	}
	return &s, nil
}

// SaveState writes s to path.
func SaveState(path string, s *State) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Clear removes the session file.
func Clear(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
