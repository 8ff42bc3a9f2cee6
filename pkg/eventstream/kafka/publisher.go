// Package kafka publishes stream session events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
)

const (
	headerEventType     = "event_type"
	headerSchemaVersion = "schema_version"

	defaultBatchTimeout = 50 * time.Millisecond
)

// ErrNoBrokers is returned when a publisher is configured without brokers.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// ErrNoTopic is returned when a publisher is configured without a topic.
var ErrNoTopic = errors.New("kafka: no topic configured")

// MessageWriter is the subset of *kafkago.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	// Brokers is a comma separated list of host:port broker addresses.
	Brokers string
	Topic   string

	// Writer overrides the underlying kafka-go writer.
	Writer MessageWriter
}

// Publisher writes JSON encoded session events keyed by conversation.
type Publisher struct {
	writer MessageWriter
	topic  string
}

// NewPublisher creates a Kafka publisher from the given config.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}

	writer := cfg.Writer
	if writer == nil {
		brokers := SplitBrokers(cfg.Brokers)
		if len(brokers) == 0 {
			return nil, ErrNoBrokers
		}

		writer = &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           defaultBatchTimeout,
			AllowAutoTopicCreation: true,
		}
	}

	return &Publisher{writer: writer, topic: cfg.Topic}, nil
}

// PublishSession encodes and writes a single event.
func (p *Publisher) PublishSession(ctx context.Context, event *eventstream.StreamSessionEvent) error {
	if err := eventstream.Validate(event); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling session event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Key()),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerSchemaVersion, Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing session event to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(s string) []string {
	var brokers []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
