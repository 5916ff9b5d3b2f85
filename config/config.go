// Package config loads processor and renderer settings from YAML.
//
// A file only needs the keys it changes; everything else keeps the value
// from [Default]:
//
//	log_level: info
//	engine:
//	  name: libopus
//	  queue_size: 64
//	codec:
//	  bitrate: 24000
//	  complexity: 5
//	  vbr: cvbr
//	  signal: voice
//	  frame_ms: 10
//	render:
//	  block_size: 512
//	  workers: 4
package config

import (
	"github.com/opd-ai/opusloop"
	"github.com/opd-ai/opusloop/codec"
	"github.com/opd-ai/opusloop/factory"
	"github.com/sirupsen/logrus"
)

// Config is the root of a configuration file.
type Config struct {
	// LogLevel is a logrus level name: trace, debug, info, warn, error.
	LogLevel string       `yaml:"log_level"`
	Engine   EngineConfig `yaml:"engine"`
	Codec    CodecConfig  `yaml:"codec"`
	Render   RenderConfig `yaml:"render"`
}

// EngineConfig selects the Opus engine.
type EngineConfig struct {
	// Name is "libopus" or "loopback".
	Name      string `yaml:"name"`
	QueueSize int    `yaml:"queue_size"`
}

// CodecConfig holds the codec parameters in file-friendly form.
type CodecConfig struct {
	Bitrate    int     `yaml:"bitrate"`
	Complexity int     `yaml:"complexity"`
	VBR        string  `yaml:"vbr"`
	Signal     string  `yaml:"signal"`
	PacketLoss int     `yaml:"packet_loss"`
	DTX        bool    `yaml:"dtx"`
	FEC        bool    `yaml:"fec"`
	FrameMs    float64 `yaml:"frame_ms"`
	Bypass     bool    `yaml:"bypass"`
}

// RenderConfig drives the offline renderer.
type RenderConfig struct {
	// BlockSize is the number of samples per Process call.
	BlockSize int `yaml:"block_size"`
	// Workers bounds how many files render at once.
	Workers int `yaml:"workers"`
	// OutDir receives rendered files. Empty writes next to the input.
	OutDir string `yaml:"out_dir"`
}

// Block size bounds for RenderConfig.
const (
	MinBlockSize = 1
	MaxBlockSize = 65536
)

// Default returns the host defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Engine: EngineConfig{
			Name:      factory.EngineLibopus,
			QueueSize: factory.DefaultQueueSize,
		},
		Codec: CodecConfig{
			Bitrate:    opusloop.DefaultBitrate,
			Complexity: opusloop.DefaultComplexity,
			VBR:        "cbr",
			Signal:     "music",
			FrameMs:    20,
		},
		Render: RenderConfig{
			BlockSize: 512,
			Workers:   4,
		},
	}
}

// Params converts the codec section to codec.Params.
func (c CodecConfig) Params() (codec.Params, error) {
	mode, err := codec.ParseVBRMode(c.VBR)
	if err != nil {
		return codec.Params{}, err
	}
	signal, err := codec.ParseSignal(c.Signal)
	if err != nil {
		return codec.Params{}, err
	}
	frame, err := codec.ParseFrameDuration(c.FrameMs)
	if err != nil {
		return codec.Params{}, err
	}
	p := codec.Params{
		Bitrate:    c.Bitrate,
		Complexity: c.Complexity,
		VBR:        mode,
		Signal:     signal,
		PacketLoss: c.PacketLoss,
		DTX:        c.DTX,
		FEC:        c.FEC,
		Frame:      frame,
	}
	if err := p.Validate(); err != nil {
		return codec.Params{}, err
	}
	return p, nil
}

// Options builds processor options from the engine and codec sections.
func (c *Config) Options() (*opusloop.Options, error) {
	params, err := c.Codec.Params()
	if err != nil {
		return nil, err
	}
	open, err := factory.Lookup(c.Engine.Name)
	if err != nil {
		return nil, err
	}
	opts := opusloop.NewOptions()
	opts.Params = params
	opts.Engine = open
	opts.QueueSize = c.Engine.QueueSize
	opts.Bypass = c.Codec.Bypass
	return opts, nil
}

// Level returns the parsed log level.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}
