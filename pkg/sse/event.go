// Package sse provides a purpose-built SSE (Server-Sent Events) decoder for the
// chatrelay client. It reassembles an arbitrarily chunked byte stream into
// discrete events separated by a blank line ("\n\n" or "\r\n\r\n") and extracts
// the "data:" payload of each event.
//
// The package also encodes the single synthetic error event the relay emits
// when an upstream returns no body. It does not provide a general purpose SSE
// server.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Done is the sentinel data value that signals normal end-of-stream.
const Done = "[DONE]"

// Event represents a single framed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Raw is the untrimmed text between two event boundaries, separator excluded.
	Raw string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n". One leading space after the colon is stripped.
	Data string
}

// IsDone reports whether the event carries the end-of-stream sentinel.
func (e Event) IsDone() bool {
	return e.Data == Done
}
