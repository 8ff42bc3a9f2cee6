package worker

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.StreamSessionEvent
	err    error
	block  chan struct{}
}

func (r *recordingPublisher) PublishSession(_ context.Context, event *eventstream.StreamSessionEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) published() []*eventstream.StreamSessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.StreamSessionEvent(nil), r.events...)
}

func sessionEvent(requestID string) *eventstream.StreamSessionEvent {
	return &eventstream.StreamSessionEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeStreamCompleted,
		EventID:       "evt-" + requestID,
		Session: eventstream.SessionMeta{
			RequestID: requestID,
			Outcome:   eventstream.OutcomeCompleted,
		},
	}
}

var _ = Describe("Worker Pool", func() {
	var pub *recordingPublisher

	BeforeEach(func() {
		pub = &recordingPublisher{}
	})

	Describe("NewPool", func() {
		It("requires a publisher", func() {
			_, err := NewPool(&Config{})
			Expect(err).To(MatchError(ContainSubstring("publisher")))
		})

		It("applies defaults", func() {
			cfg := &Config{Publisher: pub}
			wp, err := NewPool(cfg)
			Expect(err).NotTo(HaveOccurred())
			defer wp.Close()

			Expect(cfg.NumWorkers).To(Equal(defaultNumWorkers))
			Expect(cfg.QueueSize).To(Equal(defaultJobQueueSize))
			Expect(cfg.PublishTimeout).To(Equal(defaultPublishTimeout))
		})
	})

	Describe("Enqueue", func() {
		It("publishes every queued event before Close returns", func() {
			wp, err := NewPool(&Config{Publisher: pub, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			for _, id := range []string{"a", "b", "c", "d"} {
				Expect(wp.Enqueue(Job{Event: sessionEvent(id)})).To(BeTrue())
			}
			wp.Close()

			ids := []string{}
			for _, e := range pub.published() {
				ids = append(ids, e.Session.RequestID)
			}
			Expect(ids).To(ConsistOf("a", "b", "c", "d"))
		})

		It("rejects a nil event", func() {
			wp, err := NewPool(&Config{Publisher: pub})
			Expect(err).NotTo(HaveOccurred())
			defer wp.Close()

			Expect(wp.Enqueue(Job{})).To(BeFalse())
		})

		It("drops jobs when the queue is full", func() {
			pub.block = make(chan struct{})
			wp, err := NewPool(&Config{Publisher: pub, NumWorkers: 1, QueueSize: 1})
			Expect(err).NotTo(HaveOccurred())

			// The single worker takes the first job and blocks on it.
			Expect(wp.Enqueue(Job{Event: sessionEvent("first")})).To(BeTrue())
			Eventually(func() int { return len(wp.queue) }).Should(Equal(0))

			Expect(wp.Enqueue(Job{Event: sessionEvent("second")})).To(BeTrue())
			Expect(wp.Enqueue(Job{Event: sessionEvent("third")})).To(BeFalse())

			close(pub.block)
			wp.Close()
			Expect(pub.published()).To(HaveLen(2))
		})
	})

	Describe("publish failures", func() {
		It("logs and keeps processing", func() {
			pub.err = errors.New("broker down")
			wp, err := NewPool(&Config{Publisher: pub, NumWorkers: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue(Job{Event: sessionEvent("a")})).To(BeTrue())
			Expect(wp.Enqueue(Job{Event: sessionEvent("b")})).To(BeTrue())
			wp.Close()

			Expect(pub.published()).To(BeEmpty())
		})
	})

	Describe("Close", func() {
		It("is safe to call twice", func() {
			wp, err := NewPool(&Config{Publisher: pub})
			Expect(err).NotTo(HaveOccurred())
			wp.Close()
			Expect(wp.Close).NotTo(Panic())
		})
	})
})
