// Package metrics records pipeline activity through the OpenTelemetry
// Metrics API.
//
// A package-level default instance ([DefaultMetrics]) uses the global meter
// provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/opusloop/codec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all opusloop metrics.
const meterName = "github.com/opd-ai/opusloop"

// Drop reasons used as the "reason" attribute of FramesDropped.
const (
	ReasonEncode  = "encode"
	ReasonDecode  = "decode"
	ReasonOverrun = "overrun"
)

// Command outcomes used as the "status" attribute of Commands.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
	StatusDropped  = "queue_full"
)

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// FramesEncoded counts frames that completed the round trip.
	FramesEncoded metric.Int64Counter

	// FramesDropped counts frames that produced no output. Use with
	//   attribute.String("reason", ReasonEncode|ReasonDecode|ReasonOverrun)
	FramesDropped metric.Int64Counter

	// UnderrunSamples counts output samples answered with silence.
	UnderrunSamples metric.Int64Counter

	// SamplesOut counts output samples carrying decoded audio.
	SamplesOut metric.Int64Counter

	// PacketBytes sums encoded packet sizes.
	PacketBytes metric.Int64Counter

	// Commands counts control commands by outcome. Use with
	//   attribute.String("command", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// BlockDuration tracks the wall time of one processed block.
	BlockDuration metric.Float64Histogram

	// ActiveProcessors tracks live processors.
	ActiveProcessors metric.Int64UpDownCounter
}

// blockBuckets are histogram boundaries in seconds sized for audio blocks of
// a few milliseconds.
var blockBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

var (
	reasonEncode  = metric.WithAttributes(attribute.String("reason", ReasonEncode))
	reasonDecode  = metric.WithAttributes(attribute.String("reason", ReasonDecode))
	reasonOverrun = metric.WithAttributes(attribute.String("reason", ReasonOverrun))
)

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesEncoded, err = m.Int64Counter("opusloop.frames.encoded",
		metric.WithDescription("Frames that completed one encode and one decode."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("opusloop.frames.dropped",
		metric.WithDescription("Frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.UnderrunSamples, err = m.Int64Counter("opusloop.samples.underrun",
		metric.WithDescription("Output samples answered with silence."),
	); err != nil {
		return nil, err
	}
	if met.SamplesOut, err = m.Int64Counter("opusloop.samples.out",
		metric.WithDescription("Output samples carrying decoded audio."),
	); err != nil {
		return nil, err
	}
	if met.PacketBytes, err = m.Int64Counter("opusloop.packet.bytes",
		metric.WithDescription("Total size of encoded packets."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("opusloop.commands",
		metric.WithDescription("Control commands by command and status."),
	); err != nil {
		return nil, err
	}
	if met.BlockDuration, err = m.Float64Histogram("opusloop.block.duration",
		metric.WithDescription("Processing time of one audio block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(blockBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveProcessors, err = m.Int64UpDownCounter("opusloop.active_processors",
		metric.WithDescription("Number of live processors."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance, created on first call
// from [otel.GetMeterProvider]. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStats adds a stats delta. Zero fields are skipped so idle blocks
// cost nothing beyond the checks.
func (m *Metrics) RecordStats(ctx context.Context, delta codec.Stats) {
	if delta.FramesEncoded > 0 {
		m.FramesEncoded.Add(ctx, int64(delta.FramesEncoded))
	}
	if delta.EncodeFailures > 0 {
		m.FramesDropped.Add(ctx, int64(delta.EncodeFailures), reasonEncode)
	}
	if delta.DecodeFailures > 0 {
		m.FramesDropped.Add(ctx, int64(delta.DecodeFailures), reasonDecode)
	}
	if delta.Overruns > 0 {
		m.FramesDropped.Add(ctx, int64(delta.Overruns), reasonOverrun)
	}
	if delta.UnderrunSamples > 0 {
		m.UnderrunSamples.Add(ctx, int64(delta.UnderrunSamples))
	}
	if delta.SamplesOut > 0 {
		m.SamplesOut.Add(ctx, int64(delta.SamplesOut))
	}
	if delta.PacketBytes > 0 {
		m.PacketBytes.Add(ctx, int64(delta.PacketBytes))
	}
}

// RecordCommand counts one control command with its outcome.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// RecordBlock observes the processing time of one block.
func (m *Metrics) RecordBlock(ctx context.Context, d time.Duration) {
	m.BlockDuration.Record(ctx, d.Seconds())
}
