package delta

import "github.com/papercomputeco/chatrelay/pkg/sse"

// Extract returns the text fragment carried by one event's data, and false
// when there is nothing to append. Payloads that are not JSON are returned
// verbatim. Extract never fails.
func Extract(data string) (string, bool) {
	switch c := ParseChunk(data).(type) {
	case ChatCompletionChunk:
		if c.DeltaContent != "" {
			return c.DeltaContent, true
		}
		return c.MessageContent, c.MessageContent != ""
	case FlatChunk:
		if c.Delta != "" {
			return c.Delta, true
		}
		return c.Text, c.Text != ""
	case PlainTextChunk:
		return c.Text, true
	case DoneChunk, UnknownChunk:
		return "", false
	default:
		return "", false
	}
}

// IsDone reports whether data is the end-of-stream sentinel.
func IsDone(data string) bool {
	return data == sse.Done
}
