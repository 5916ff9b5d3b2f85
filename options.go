package opusloop

import (
	"github.com/opd-ai/opusloop/codec"
	"github.com/opd-ai/opusloop/engine"
	"github.com/opd-ai/opusloop/metrics"
)

// Host defaults applied on top of codec.DefaultParams.
const (
	DefaultBitrate    = 32000
	DefaultComplexity = 5
)

// Options configures a Processor.
type Options struct {
	// Params are the initial desired parameters.
	Params codec.Params

	// Engine opens the Opus engine. Nil selects the engine named by the
	// factory package (libopus unless OPUSLOOP_ENGINE says otherwise).
	Engine engine.Factory

	// QueueSize is the command queue capacity. Zero takes the factory
	// default (64 unless OPUSLOOP_QUEUE_SIZE says otherwise).
	QueueSize int

	// Bypass starts the processor passing input straight to output.
	Bypass bool

	// Metrics receives per-block counters. Nil disables recording.
	Metrics *metrics.Metrics

	// TimeProvider times blocks for Metrics. Nil uses the wall clock.
	TimeProvider TimeProvider
}

// NewOptions returns the host defaults: 32 kbps, complexity 5, CBR, music,
// 20 ms frames, factory-selected engine and queue size, no metrics.
func NewOptions() *Options {
	params := codec.DefaultParams()
	params.Bitrate = DefaultBitrate
	params.Complexity = DefaultComplexity

	return &Options{
		Params:       params,
		TimeProvider: WallClock{},
	}
}
