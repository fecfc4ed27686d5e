package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "call-relay"

// Direction attribute values for FramesRelayed.
const (
	DirectionToModel     = "to_model"
	DirectionToTelephony = "to_telephony"
)

// Protocol attribute values for DecodeErrors.
const (
	ProtocolTwilio = "twilio"
	ProtocolOpenAI = "openai"
)

// Metrics holds the OpenTelemetry instruments recorded by call relays.
// All fields are safe for concurrent use.
type Metrics struct {
	// ActiveSessions tracks the number of live relays.
	ActiveSessions metric.Int64UpDownCounter

	// FramesRelayed counts frames forwarded between sockets, by direction.
	FramesRelayed metric.Int64Counter

	// DecodeErrors counts dropped frames that failed to decode, by protocol.
	DecodeErrors metric.Int64Counter

	// Interruptions counts barge-ins that cleared in-flight assistant audio.
	Interruptions metric.Int64Counter

	// Truncations counts conversation.item.truncate events sent.
	Truncations metric.Int64Counter

	// ClockAnomalies counts regressing media timestamps and negative
	// elapsed playback computations.
	ClockAnomalies metric.Int64Counter

	// HandshakeDuration tracks time from model socket open to session.updated.
	HandshakeDuration metric.Float64Histogram
}

var handshakeBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates the relay instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveSessions, err = m.Int64UpDownCounter("call_relay.active_sessions",
		metric.WithDescription("Number of live call relays."),
	); err != nil {
		return nil, err
	}
	if met.FramesRelayed, err = m.Int64Counter("call_relay.frames_relayed",
		metric.WithDescription("Audio frames forwarded between telephony and model, by direction."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("call_relay.decode_errors",
		metric.WithDescription("Inbound frames dropped because they could not be decoded, by protocol."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("call_relay.interruptions",
		metric.WithDescription("Caller barge-ins that cleared in-flight assistant audio."),
	); err != nil {
		return nil, err
	}
	if met.Truncations, err = m.Int64Counter("call_relay.truncations",
		metric.WithDescription("Assistant items truncated at the heard playback offset."),
	); err != nil {
		return nil, err
	}
	if met.ClockAnomalies, err = m.Int64Counter("call_relay.clock_anomalies",
		metric.WithDescription("Regressing media timestamps or negative elapsed playback."),
	); err != nil {
		return nil, err
	}
	if met.HandshakeDuration, err = m.Float64Histogram("call_relay.handshake.duration",
		metric.WithDescription("Time from model socket open to session.updated."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(handshakeBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics built on the global
// MeterProvider. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observability: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrame counts one relayed frame in the given direction.
func (m *Metrics) RecordFrame(ctx context.Context, direction string) {
	m.FramesRelayed.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordDecodeError counts one dropped frame for the given protocol.
func (m *Metrics) RecordDecodeError(ctx context.Context, protocol string) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("protocol", protocol)))
}

// RecordHandshake observes the handshake latency.
func (m *Metrics) RecordHandshake(ctx context.Context, d time.Duration) {
	m.HandshakeDuration.Record(ctx, d.Seconds())
}
