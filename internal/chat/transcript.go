package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Transcript keeps the running conversation in memory and mirrors it to a
// JSON file so a restart does not lose the chat context.
type Transcript struct {
	mu    sync.Mutex
	path  string
	turns []Turn
}

// OpenTranscript loads the transcript at path, starting empty when the
// file does not exist yet.
func OpenTranscript(path string) (*Transcript, error) {
	t := &Transcript{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	if err := json.Unmarshal(data, &t.turns); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", path, err)
	}
	return t, nil
}

// Turns returns a copy of the conversation so far.
func (t *Transcript) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Append records a user message and the assistant's reply, then persists
// the transcript.
func (t *Transcript) Append(userMessage, botReply string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns,
		Turn{Role: RoleUser, Message: userMessage},
		Turn{Role: RoleBot, Message: botReply},
	)
	return t.save()
}

// Clear drops the conversation and removes the file.
func (t *Transcript) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove transcript: %w", err)
	}
	return nil
}

func (t *Transcript) save() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	data, err := json.MarshalIndent(t.turns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace transcript: %w", err)
	}
	return nil
}
