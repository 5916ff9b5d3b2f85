package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/opd-ai/opusloop/factory"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "config.Load",
		"path":     path,
		"engine":   cfg.Engine.Name,
		"bitrate":  cfg.Codec.Bitrate,
		"frame_ms": cfg.Codec.FrameMs,
	}).Info("Loaded configuration")
	return cfg, nil
}

// LoadFromReader decodes YAML from r over Default and validates the result.
// Unknown keys are an error. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg and returns a joined error listing every problem.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := cfg.Level(); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: trace, debug, info, warn, error", cfg.LogLevel))
	}

	if _, err := factory.Lookup(cfg.Engine.Name); err != nil {
		errs = append(errs, fmt.Errorf("engine.name: %w", err))
	}
	if q := cfg.Engine.QueueSize; q < factory.MinQueueSize || q > factory.MaxQueueSize {
		errs = append(errs, fmt.Errorf("engine.queue_size %d must be between %d and %d", q, factory.MinQueueSize, factory.MaxQueueSize))
	}

	if _, err := cfg.Codec.Params(); err != nil {
		errs = append(errs, fmt.Errorf("codec: %w", err))
	}

	if b := cfg.Render.BlockSize; b < MinBlockSize || b > MaxBlockSize {
		errs = append(errs, fmt.Errorf("render.block_size %d must be between %d and %d", b, MinBlockSize, MaxBlockSize))
	}
	if cfg.Render.Workers < 1 {
		errs = append(errs, fmt.Errorf("render.workers %d must be at least 1", cfg.Render.Workers))
	}

	return errors.Join(errs...)
}
