package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStreamCompleted is emitted after a relayed stream ends.
	EventTypeStreamCompleted = "chatrelay.stream.completed"
)

// Outcome describes how a relayed stream session ended.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeClientDisconnected Outcome = "client_disconnected"
	OutcomeUpstreamError      Outcome = "upstream_error"
	OutcomeNoBody             Outcome = "no_body"
	OutcomeCancelled          Outcome = "cancelled"
)

// StreamSessionEvent is a transport-neutral event payload for a finished
// stream relay session.
type StreamSessionEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Source        EventSource   `json:"source"`
	Session       SessionMeta   `json:"session"`
	Request       RequestTarget `json:"request"`
}

// EventSource identifies where the session was relayed.
type EventSource struct {
	Project  string `json:"project,omitempty"`
	Upstream string `json:"upstream"`
}

// SessionMeta captures relay lifecycle metadata for the event.
type SessionMeta struct {
	RequestID    string    `json:"request_id"`
	Path         string    `json:"path,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
	HTTPStatus   int       `json:"http_status"`
	BytesRelayed int64     `json:"bytes_relayed"`
	Outcome      Outcome   `json:"outcome"`
	Error        string    `json:"error,omitempty"`
}

// RequestTarget records which assistant or model the session addressed.
type RequestTarget struct {
	AssistantID    string `json:"assistant_id,omitempty"`
	Model          string `json:"model,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageCount   int    `json:"message_count"`
}

// Key returns the partition key for the event. Sessions of one conversation
// share a key so they stay ordered on a partitioned stream.
func (e *StreamSessionEvent) Key() string {
	if e.Request.ConversationID != "" {
		return e.Request.ConversationID
	}
	return e.Session.RequestID
}
