// Package observe exposes pipeline metrics through the OpenTelemetry Metrics
// API. A Prometheus exporter bridge is installed by [InitProvider] so the
// counters can be scraped from /metrics.
//
// Audio-thread counters are never updated from the device callback. They are
// read through observable instruments from a [Snapshot] the engine keeps with
// atomics, so collection cost lands on the scraper.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/chenata22/SoundMixML"

// Snapshot is a point-in-time view of the realtime side of the pipeline.
type Snapshot struct {
	FramesProcessed uint64
	FramesForwarded uint64
	ChunksDropped   uint64
	QueuedSamples   int
}

// Metrics holds the instruments recorded by the sender loop.
type Metrics struct {
	// ExchangeDuration tracks one send-and-reply round trip with the classifier.
	ExchangeDuration metric.Float64Histogram

	// ChunksSent counts chunks handed to the transport. Use with attribute:
	//   attribute.String("status", "ok"|"fallback")
	ChunksSent metric.Int64Counter

	// DecisionChanges counts transitions of the decision token. Use with attribute:
	//   attribute.String("decision", ...)
	DecisionChanges metric.Int64Counter

	meter metric.Meter
}

// exchangeBuckets are in seconds. A chunk is 100 ms of audio, so anything
// past that means the queue is growing.
var exchangeBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates the instruments on mp. A nil mp yields no-op instruments.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.ExchangeDuration, err = m.Float64Histogram("soundmix.exchange.duration",
		metric.WithDescription("Round trip of one chunk to the classifier and back."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(exchangeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunksSent, err = m.Int64Counter("soundmix.chunks.sent",
		metric.WithDescription("Chunks sent to the classifier by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DecisionChanges, err = m.Int64Counter("soundmix.decision.changes",
		metric.WithDescription("Decision token transitions by new value."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Noop returns Metrics that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordExchange records one classifier round trip.
func (m *Metrics) RecordExchange(ctx context.Context, d time.Duration, fallback bool) {
	status := "ok"
	if fallback {
		status = "fallback"
	}
	m.ExchangeDuration.Record(ctx, d.Seconds())
	m.ChunksSent.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDecisionChange records a switch to decision.
func (m *Metrics) RecordDecisionChange(ctx context.Context, decision string) {
	m.DecisionChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// ObservePipeline registers observable instruments fed by snap. snap is
// called once per collection and must be safe for concurrent use.
func (m *Metrics) ObservePipeline(snap func() Snapshot) (metric.Registration, error) {
	processed, err := m.meter.Int64ObservableCounter("soundmix.frames.processed",
		metric.WithDescription("Device frames handled by the audio callback."))
	if err != nil {
		return nil, err
	}
	forwarded, err := m.meter.Int64ObservableCounter("soundmix.frames.forwarded",
		metric.WithDescription("Frames the silence gate let through to the relay."))
	if err != nil {
		return nil, err
	}
	dropped, err := m.meter.Int64ObservableCounter("soundmix.chunks.dropped",
		metric.WithDescription("Chunks discarded because the relay was full."))
	if err != nil {
		return nil, err
	}
	queued, err := m.meter.Int64ObservableGauge("soundmix.relay.queued",
		metric.WithDescription("Samples waiting in the relay buffer."))
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snap()
		o.ObserveInt64(processed, int64(s.FramesProcessed))
		o.ObserveInt64(forwarded, int64(s.FramesForwarded))
		o.ObserveInt64(dropped, int64(s.ChunksDropped))
		o.ObserveInt64(queued, int64(s.QueuedSamples))
		return nil
	}, processed, forwarded, dropped, queued)
}
