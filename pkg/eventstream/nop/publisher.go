// Package nop is the eventstream backend used when publishing is disabled.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
)

// Publisher validates events and drops them.
type Publisher struct {
	dropped atomic.Int64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishSession(_ context.Context, event *eventstream.StreamSessionEvent) error {
	if err := eventstream.Validate(event); err != nil {
		return err
	}
	p.dropped.Add(1)
	return nil
}

// Dropped reports how many valid events were discarded.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() error {
	return nil
}
