// Package worker provides an asynchronous worker pool that publishes stream
// session events using the provided eventstream.Publisher.
//
// The pool decouples publishing from the proxy's HTTP hot path so that a slow
// or unavailable event stream never delays the relayed stream itself.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
	"github.com/papercomputeco/chatrelay/pkg/logger"
)

var (
	defaultNumWorkers     uint = 3
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 5 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Event *eventstream.StreamSessionEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every session event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish (defaults to 5s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool publishes session events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	if job.Event == nil {
		p.logger.Warn("job not queued, nil session event")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"request_id", job.Event.Session.RequestID,
			"outcome", job.Event.Session.Outcome,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"request_id", job.Event.Session.RequestID,
			"outcome", job.Event.Session.Outcome,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob publishes a single session event. Failures are logged and dropped.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Publisher.PublishSession(ctx, job.Event); err != nil {
		p.logger.Error("publishing session event failed",
			"request_id", job.Event.Session.RequestID,
			"event_id", job.Event.EventID,
			"error", err,
		)
		return
	}

	p.logger.Debug("session event published",
		"request_id", job.Event.Session.RequestID,
		"event_id", job.Event.EventID,
		"outcome", job.Event.Session.Outcome,
	)
}
