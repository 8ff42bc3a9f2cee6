// Package delta pulls incremental assistant text out of streaming event payloads.
//
// Upstreams emit several JSON shapes. ParseChunk classifies a payload into one
// of the Chunk variants and Extract reduces it to the text to append.
package delta

import (
	"encoding/json"

	"github.com/papercomputeco/chatrelay/pkg/sse"
)

// Chunk is the decoded form of one event's data. The concrete type is one of
// DoneChunk, ChatCompletionChunk, FlatChunk, PlainTextChunk or UnknownChunk.
type Chunk interface {
	isChunk()
}

// DoneChunk is the end-of-stream sentinel.
type DoneChunk struct{}

// ChatCompletionChunk is the chat-completion shape:
// {"choices":[{"delta":{"content":"..."}}]} or {"choices":[{"message":{"content":"..."}}]}.
// Only the first choice is considered.
type ChatCompletionChunk struct {
	DeltaContent   string
	MessageContent string
}

// FlatChunk is the flat shape: {"delta":"..."} or {"text":"..."}.
type FlatChunk struct {
	Delta string
	Text  string
}

// PlainTextChunk carries a payload that is not JSON at all.
type PlainTextChunk struct {
	Text string
}

// UnknownChunk is valid JSON with no recognized text field, or an empty payload.
type UnknownChunk struct{}

func (DoneChunk) isChunk()           {}
func (ChatCompletionChunk) isChunk() {}
func (FlatChunk) isChunk()           {}
func (PlainTextChunk) isChunk()      {}
func (UnknownChunk) isChunk()        {}

// object decodes raw as a JSON object. Keys are matched exactly later on, so
// "Delta" or "TEXT" never stand in for "delta" or "text".
func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// ParseChunk classifies data. Shapes are tried in precedence order and the
// first one that carries non-empty text is returned, so an object that has a
// choices array with nothing in it can still match the flat shape.
func ParseChunk(data string) Chunk {
	switch {
	case data == "":
		return UnknownChunk{}
	case data == sse.Done:
		return DoneChunk{}
	case !json.Valid([]byte(data)):
		return PlainTextChunk{Text: data}
	}

	env, ok := object(json.RawMessage(data))
	if !ok {
		// Valid JSON that is not an object.
		return UnknownChunk{}
	}

	if c, ok := parseChoices(env["choices"]); ok {
		return c
	}

	flat := FlatChunk{
		Delta: stringValue(env["delta"]),
		Text:  stringValue(env["text"]),
	}
	if flat.Delta != "" || flat.Text != "" {
		return flat
	}

	return UnknownChunk{}
}

func parseChoices(raw json.RawMessage) (ChatCompletionChunk, bool) {
	if len(raw) == 0 {
		return ChatCompletionChunk{}, false
	}

	var choices []json.RawMessage
	if err := json.Unmarshal(raw, &choices); err != nil || len(choices) == 0 {
		return ChatCompletionChunk{}, false
	}

	first, ok := object(choices[0])
	if !ok {
		return ChatCompletionChunk{}, false
	}
	c := ChatCompletionChunk{
		DeltaContent:   contentValue(first["delta"]),
		MessageContent: contentValue(first["message"]),
	}
	return c, c.DeltaContent != "" || c.MessageContent != ""
}

func contentValue(raw json.RawMessage) string {
	h, ok := object(raw)
	if !ok {
		return ""
	}
	return stringValue(h["content"])
}

// stringValue returns raw decoded as a JSON string, or "" for any other type.
func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
