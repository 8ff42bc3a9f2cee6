package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatrelay/pkg/dotdir"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/sse"
)

const (
	// DefaultTitle names a thread before its first user message.
	DefaultTitle = "New chat"

	// DefaultBufferLength is sent as buffer_length when none is configured.
	DefaultBufferLength = 6

	titleLimit = 48
)

// ThreadOptions selects what answers a thread and how requests are shaped.
// AssistantID wins over Model when both are set.
type ThreadOptions struct {
	AssistantID    string
	Model          string
	ConversationID string
	BufferLength   int

	// Hidden defaults to true when nil.
	Hidden *bool
}

// Message is one entry of a thread's history. Stopped marks an assistant
// reply whose stream was cancelled before it finished.
type Message struct {
	Role    llm.Role
	Content string
	Stopped bool
}

// Thread is a single conversation. At most one stream is active per thread:
// Send cancels and waits for any earlier stream before starting its own.
type Thread struct {
	client *Client
	opts   ThreadOptions

	mu        sync.Mutex
	id        string
	title     string
	preview   string
	updatedAt time.Time
	messages  []Message

	cancel context.CancelFunc
	done   chan struct{}
}

// NewThread creates an empty thread.
func NewThread(client *Client, opts ThreadOptions) *Thread {
	if opts.BufferLength <= 0 {
		opts.BufferLength = DefaultBufferLength
	}
	if opts.Hidden == nil {
		hidden := true
		opts.Hidden = &hidden
	}

	return &Thread{
		client:    client,
		opts:      opts,
		id:        uuid.NewString(),
		title:     DefaultTitle,
		updatedAt: time.Now(),
	}
}

// RestoreThread rebuilds a thread from saved state. A conversation id in the
// state takes precedence over the one in opts.
func RestoreThread(client *Client, opts ThreadOptions, state *dotdir.ThreadState) *Thread {
	if state != nil && state.ConversationID != "" {
		opts.ConversationID = state.ConversationID
	}
	t := NewThread(client, opts)
	if state == nil {
		return t
	}

	if state.ID != "" {
		t.id = state.ID
	}
	if state.Title != "" {
		t.title = state.Title
	}
	if !state.UpdatedAt.IsZero() {
		t.updatedAt = state.UpdatedAt
	}
	for _, m := range state.Messages {
		t.messages = append(t.messages, Message{Role: llm.Role(m.Role), Content: m.Content})
		if llm.Role(m.Role) == llm.RoleUser {
			t.preview = m.Content
		}
	}
	return t
}

// Send appends text as a user message and streams the assistant reply into
// the thread, calling onDelta for each piece as it arrives.
//
// A cancelled stream, whether through ctx or Stop, keeps the partial reply,
// marks it Stopped and returns nil. Any other failure replaces the reply
// with "Error: <message>" and returns the error.
func (t *Thread) Send(ctx context.Context, text string, onDelta func(string)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)

	t.mu.Lock()
	prevCancel, prevDone := t.cancel, t.done
	t.cancel, t.done = cancel, done
	t.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	t.mu.Lock()
	if !t.hasUserMessage() {
		t.title = titlePrefix(text)
	}
	t.preview = text
	t.messages = append(t.messages, Message{Role: llm.RoleUser, Content: text})
	history := t.history()
	t.messages = append(t.messages, Message{Role: llm.RoleAssistant})
	reply := len(t.messages) - 1
	t.updatedAt = time.Now()
	t.mu.Unlock()

	_, err := t.client.StreamChat(streamCtx, t.request(history), func(piece string) {
		t.mu.Lock()
		t.messages[reply].Content += piece
		t.updatedAt = time.Now()
		t.mu.Unlock()

		if onDelta != nil {
			onDelta(piece)
		}
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done == done {
		t.cancel, t.done = nil, nil
	}
	t.updatedAt = time.Now()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, sse.ErrAborted):
		t.messages[reply].Stopped = true
		return nil
	default:
		t.messages[reply].Content = "Error: " + err.Error()
		return err
	}
}

// Stop cancels the active stream, if any. It does not wait for Send to
// return.
func (t *Thread) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

// Streaming reports whether a stream is in flight.
func (t *Thread) Streaming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done != nil
}

// Messages returns a copy of the history.
func (t *Thread) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Title is taken from the first user message of the thread.
func (t *Thread) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

// Preview is the text of the latest user message.
func (t *Thread) Preview() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.preview
}

// UpdatedAt is the time of the last message change.
func (t *Thread) UpdatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt
}

// Snapshot returns the thread in its persisted form. Empty assistant
// replies are left out.
func (t *Thread) Snapshot() *dotdir.ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := &dotdir.ThreadState{
		ID:             t.id,
		Title:          t.title,
		ConversationID: t.opts.ConversationID,
		UpdatedAt:      t.updatedAt.UTC(),
		Messages:       make([]dotdir.ThreadMessage, 0, len(t.messages)),
	}
	for _, m := range t.messages {
		if m.Role == llm.RoleAssistant && m.Content == "" {
			continue
		}
		state.Messages = append(state.Messages, dotdir.ThreadMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return state
}

func (t *Thread) hasUserMessage() bool {
	for _, m := range t.messages {
		if m.Role == llm.RoleUser {
			return true
		}
	}
	return false
}

// history is the conversation sent upstream: user and assistant turns only,
// without replies that were stopped before any text arrived. Callers hold t.mu.
func (t *Thread) history() []llm.Message {
	out := make([]llm.Message, 0, len(t.messages))
	for _, m := range t.messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		if m.Role == llm.RoleAssistant && m.Content == "" {
			continue
		}
		out = append(out, llm.NewTextMessage(m.Role, m.Content))
	}
	return out
}

func (t *Thread) request(history []llm.Message) *llm.ChatRequest {
	bufferLength := t.opts.BufferLength
	hidden := *t.opts.Hidden

	req := &llm.ChatRequest{
		ConversationID: t.opts.ConversationID,
		Hidden:         &hidden,
		BufferLength:   &bufferLength,
		Messages:       history,
	}
	if t.opts.AssistantID != "" {
		req.AssistantID = t.opts.AssistantID
	} else {
		req.Model = t.opts.Model
	}
	return req
}

func titlePrefix(text string) string {
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return string(runes[:titleLimit])
}
