package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ChatRequest is the body accepted by the chat routes. Exactly one of
// AssistantID and Model selects what answers; see Selector.
type ChatRequest struct {
	AssistantID    string   `json:"assistant_id,omitempty"`
	Model          string   `json:"model,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Hidden         *bool    `json:"hidden,omitempty"`
	BufferLength   *int     `json:"buffer_length,omitempty"`
	ToolKeys       []string `json:"tool_keys,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`

	// Stream is ignored on input; the route decides.
	Stream *bool `json:"stream,omitempty"`

	Messages []Message `json:"messages"`
}

// chatRequestWire mirrors ChatRequest with pointer message fields so that a
// missing content can be told apart from an empty one.
type chatRequestWire struct {
	AssistantID    *string       `json:"assistant_id"`
	Model          *string       `json:"model"`
	ConversationID *string       `json:"conversation_id"`
	Hidden         *bool         `json:"hidden"`
	BufferLength   *int          `json:"buffer_length"`
	ToolKeys       []string      `json:"tool_keys"`
	Temperature    *float64      `json:"temperature"`
	Stream         *bool         `json:"stream"`
	Messages       []messageWire `json:"messages"`
}

type messageWire struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// ParseChatRequest decodes and validates a chat request body. Unknown fields
// are dropped. Any failure is returned as a *ValidationError.
func ParseChatRequest(body []byte) (*ChatRequest, error) {
	if len(body) == 0 {
		return nil, newValidationError(FieldError{Field: "body", Message: "missing request body"})
	}

	var wire chatRequestWire
	if err := json.Unmarshal(exactKeys(body), &wire); err != nil {
		return nil, decodeError(err)
	}

	var fields []FieldError
	req := &ChatRequest{
		AssistantID:    deref(wire.AssistantID),
		Model:          deref(wire.Model),
		ConversationID: deref(wire.ConversationID),
		Hidden:         wire.Hidden,
		BufferLength:   wire.BufferLength,
		ToolKeys:       wire.ToolKeys,
		Temperature:    wire.Temperature,
		Stream:         wire.Stream,
		Messages:       make([]Message, 0, len(wire.Messages)),
	}

	for i, m := range wire.Messages {
		if m.Content == nil {
			fields = append(fields, FieldError{Field: messageField(i, "content"), Message: "required"})
		}
		req.Messages = append(req.Messages, Message{Role: Role(deref(m.Role)), Content: deref(m.Content)})
	}

	if err := req.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			fields = append(fields, verr.Fields...)
		}
	}
	if len(fields) > 0 {
		return nil, newValidationError(dedupe(fields)...)
	}

	return req, nil
}

var (
	requestKeys = keySet("assistant_id", "model", "conversation_id", "hidden", "buffer_length",
		"tool_keys", "temperature", "stream", "messages")
	messageKeys = keySet("role", "content")
)

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// exactKeys drops every key that is not spelled exactly like a request or
// message field. encoding/json folds case when matching struct tags, which
// would let "MODEL" or "Content" through. Bodies that are not shaped like a
// request are returned untouched so decoding reports the real error.
func exactKeys(body []byte) []byte {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return body
	}
	filterKeys(top, requestKeys)

	var messages []json.RawMessage
	if raw, ok := top["messages"]; ok && json.Unmarshal(raw, &messages) == nil {
		for i, m := range messages {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(m, &fields); err != nil || fields == nil {
				continue
			}
			filterKeys(fields, messageKeys)
			if out, err := json.Marshal(fields); err == nil {
				messages[i] = out
			}
		}
		if messages != nil {
			if out, err := json.Marshal(messages); err == nil {
				top["messages"] = out
			}
		}
	}

	out, err := json.Marshal(top)
	if err != nil {
		return body
	}
	return out
}

func filterKeys(m map[string]json.RawMessage, allowed map[string]struct{}) {
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
		}
	}
}

// UpstreamBody renders the request for the remote chat service with the
// stream flag forced to stream and metadata attached to every message.
func (r *ChatRequest) UpstreamBody(stream bool) ([]byte, error) {
	messages := make([]upstreamMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, upstreamMessage{
			Role:     m.Role,
			Content:  m.Content,
			Metadata: map[string]any{},
		})
	}

	body := struct {
		*ChatRequest
		Stream   bool              `json:"stream"`
		Messages []upstreamMessage `json:"messages"`
	}{
		ChatRequest: r,
		Stream:      stream,
		Messages:    messages,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding upstream body: %w", err)
	}
	return data, nil
}

// BufferLengthParam returns the buffer length as a query parameter value, or
// "" when the request does not set one.
func (r *ChatRequest) BufferLengthParam() string {
	if r.BufferLength == nil || *r.BufferLength < 1 {
		return ""
	}
	return strconv.Itoa(*r.BufferLength)
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return newValidationError(FieldError{
			Field:   field,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type.Kind(), typeErr.Value),
		})
	}
	return newValidationError(FieldError{Field: "body", Message: "invalid JSON: " + err.Error()})
}

func messageField(i int, name string) string {
	return fmt.Sprintf("messages[%d].%s", i, name)
}

func dedupe(fields []FieldError) []FieldError {
	seen := make(map[FieldError]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
