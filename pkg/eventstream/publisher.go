package eventstream

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNilSessionEvent indicates a nil session event payload was provided to a publisher.
	ErrNilSessionEvent = errors.New("nil session event")

	// ErrInvalidSessionEvent is returned for events missing their envelope fields.
	ErrInvalidSessionEvent = errors.New("invalid session event")
)

// Publisher publishes stream session events to an event stream backend.
type Publisher interface {
	PublishSession(ctx context.Context, event *StreamSessionEvent) error
	Close() error
}

// Validate checks the envelope fields every backend relies on.
func Validate(event *StreamSessionEvent) error {
	switch {
	case event == nil:
		return ErrNilSessionEvent
	case event.SchemaVersion <= 0:
		return fmt.Errorf("%w: schema version %d", ErrInvalidSessionEvent, event.SchemaVersion)
	case event.EventType == "":
		return fmt.Errorf("%w: missing event type", ErrInvalidSessionEvent)
	case event.EventID == "":
		return fmt.Errorf("%w: missing event id", ErrInvalidSessionEvent)
	}
	return nil
}
