package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	threadFile = "thread.json"
)

// ThreadState is the chat CLI's conversation, persisted so that a later
// "chatrelay chat --resume" continues where the last session stopped.
type ThreadState struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	ConversationID string          `json:"conversation_id,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Messages       []ThreadMessage `json:"messages"`
}

// ThreadMessage is a single saved message.
type ThreadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LoadThreadState loads the saved thread from the target .chatrelay/thread.json.
// Returns nil, nil if no thread has been saved.
func (m *Manager) LoadThreadState(overrideDir string) (*ThreadState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, threadFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading thread state: %w", err)
	}

	state := &ThreadState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing thread state: %w", err)
	}

	return state, nil
}

// SaveThread persists the thread to the target .chatrelay/thread.json.
func (m *Manager) SaveThread(state *ThreadState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil thread state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling thread state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, threadFile), data, 0o600); err != nil {
		return fmt.Errorf("writing thread state: %w", err)
	}

	return nil
}

// ClearThread removes the saved thread so the next chat starts fresh.
// Returns nil if there is nothing to clear.
func (m *Manager) ClearThread(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, threadFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing thread state: %w", err)
	}

	return nil
}
