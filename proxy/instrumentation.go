package proxy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/papercomputeco/chatrelay/pkg/eventstream"
)

const scopeName = "github.com/papercomputeco/chatrelay/proxy"

var meter = otel.Meter(scopeName)

// relayMetrics records one measurement per finished stream session.
type relayMetrics struct {
	sessions metric.Int64Counter
	bytes    metric.Int64Counter
	duration metric.Float64Histogram
}

func newRelayMetrics() (*relayMetrics, error) {
	sessions, err := meter.Int64Counter("chatrelay.relay.sessions",
		metric.WithDescription("Stream sessions by outcome"))
	if err != nil {
		return nil, err
	}

	bytes, err := meter.Int64Counter("chatrelay.relay.bytes",
		metric.WithDescription("Bytes relayed downstream"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("chatrelay.relay.duration",
		metric.WithDescription("Stream session duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &relayMetrics{sessions: sessions, bytes: bytes, duration: duration}, nil
}

func (m *relayMetrics) record(ctx context.Context, outcome eventstream.Outcome, status int, n int64, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Int("http.status_code", status),
	)
	m.sessions.Add(ctx, 1, attrs)
	m.bytes.Add(ctx, n, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}
