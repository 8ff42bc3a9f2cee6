// Package testutils holds fakes shared by the chatrelay test suites.
package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
)

// RecordingPublisher is an eventstream.Publisher that keeps every event it
// is given. Err, when set, is returned from PublishSession after recording.
type RecordingPublisher struct {
	Err error

	mu     sync.Mutex
	events []*eventstream.StreamSessionEvent
	closed bool
}

func (r *RecordingPublisher) PublishSession(_ context.Context, event *eventstream.StreamSessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

func (r *RecordingPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *RecordingPublisher) Events() []*eventstream.StreamSessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.StreamSessionEvent(nil), r.events...)
}

// Outcomes returns the session outcome of each recorded event.
func (r *RecordingPublisher) Outcomes() []eventstream.Outcome {
	var out []eventstream.Outcome
	for _, e := range r.Events() {
		out = append(out, e.Session.Outcome)
	}
	return out
}

func (r *RecordingPublisher) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
