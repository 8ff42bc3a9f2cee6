package testutils

import (
	"encoding/json"
	"io"
	"net/http"
)

// Done is the end-of-stream event.
const Done = "data: [DONE]\n\n"

// WriteSSE writes each raw event to w as text/event-stream, flushing after
// every one so that the client sees separate chunks.
func WriteSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, ev := range events {
		_, _ = io.WriteString(w, ev)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// DeltaEvent returns an LF-terminated event carrying text as a chat
// completion delta.
func DeltaEvent(text string) string {
	type delta struct {
		Content string `json:"content"`
	}
	type choice struct {
		Delta delta `json:"delta"`
	}
	data, _ := json.Marshal(struct {
		Choices []choice `json:"choices"`
	}{Choices: []choice{{Delta: delta{Content: text}}}})
	return "data: " + string(data) + "\n\n"
}
