package factory

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/opd-ai/opusloop/engine"
	"github.com/opd-ai/opusloop/engine/libopus"
	"github.com/sirupsen/logrus"
)

// Engine names.
const (
	EngineLibopus  = "libopus"
	EngineLoopback = "loopback"
)

// Environment variables read by NewEngineFactory.
const (
	EnvEngine    = "OPUSLOOP_ENGINE"
	EnvQueueSize = "OPUSLOOP_QUEUE_SIZE"
)

// Queue size bounds.
const (
	DefaultQueueSize = 64
	MinQueueSize     = 1
	MaxQueueSize     = 4096
)

var engines = map[string]engine.Factory{
	EngineLibopus:  libopus.Open,
	EngineLoopback: engine.OpenLoopback,
}

// Names returns the known engine names in sorted order.
func Names() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the engine factory registered under name.
func Lookup(name string) (engine.Factory, error) {
	open, ok := engines[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownEngine, name, strings.Join(Names(), ", "))
	}
	return open, nil
}

// Config is the factory's selection.
type Config struct {
	// Engine names the engine opened by Open.
	Engine string
	// QueueSize is the command queue capacity handed to processors.
	QueueSize int
}

// Validate checks the engine name and queue bounds.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}
	if _, err := Lookup(c.Engine); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.QueueSize < MinQueueSize || c.QueueSize > MaxQueueSize {
		return fmt.Errorf("%w: queue size %d must be between %d and %d", ErrInvalidConfig, c.QueueSize, MinQueueSize, MaxQueueSize)
	}
	return nil
}

// EngineFactory opens engines according to its configuration. It is safe for
// concurrent use.
type EngineFactory struct {
	mu     sync.RWMutex
	config *Config
}

// NewEngineFactory creates a factory with defaults and environment overrides.
func NewEngineFactory() *EngineFactory {
	config := createDefaultConfig()
	applyEnvironmentOverrides(config)
	logConfigurationInfo(config)

	return &EngineFactory{config: config}
}

// createDefaultConfig selects libopus, the only engine that actually
// compresses audio.
func createDefaultConfig() *Config {
	return &Config{
		Engine:    EngineLibopus,
		QueueSize: DefaultQueueSize,
	}
}

func applyEnvironmentOverrides(config *Config) {
	parseEngineSetting(config)
	parseQueueSizeSetting(config)
}

// parseEngineSetting updates Engine from OPUSLOOP_ENGINE when it names a
// known engine.
func parseEngineSetting(config *Config) {
	name := os.Getenv(EnvEngine)
	if name == "" {
		return
	}
	if _, err := Lookup(name); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseEngineSetting",
			"env_var":     EnvEngine,
			"value":       name,
			"error":       err.Error(),
			"using_value": config.Engine,
		}).Warn("Unknown engine in OPUSLOOP_ENGINE environment variable, using default")
		return
	}
	config.Engine = strings.ToLower(strings.TrimSpace(name))
}

// parseQueueSizeSetting updates QueueSize from OPUSLOOP_QUEUE_SIZE when it
// parses and lies within [MinQueueSize, MaxQueueSize].
func parseQueueSizeSetting(config *Config) {
	sizeStr := os.Getenv(EnvQueueSize)
	if sizeStr == "" {
		return
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseQueueSizeSetting",
			"env_var":     EnvQueueSize,
			"value":       sizeStr,
			"error":       err.Error(),
			"using_value": config.QueueSize,
		}).Warn("Failed to parse OPUSLOOP_QUEUE_SIZE environment variable, using default")
		return
	}
	if size < MinQueueSize || size > MaxQueueSize {
		logrus.WithFields(logrus.Fields{
			"function":    "parseQueueSizeSetting",
			"env_var":     EnvQueueSize,
			"value":       size,
			"min":         MinQueueSize,
			"max":         MaxQueueSize,
			"using_value": config.QueueSize,
		}).Warn("OPUSLOOP_QUEUE_SIZE value out of bounds, using default")
		return
	}
	config.QueueSize = size
}

func logConfigurationInfo(config *Config) {
	logrus.WithFields(logrus.Fields{
		"function":   "NewEngineFactory",
		"engine":     config.Engine,
		"queue_size": config.QueueSize,
	}).Info("Created engine factory with configuration")
}

// Open opens an engine of the configured kind. The method value f.Open is
// an engine.Factory.
func (f *EngineFactory) Open(sampleRate, channels int) (engine.Engine, error) {
	f.mu.RLock()
	name := f.config.Engine
	f.mu.RUnlock()

	open, err := Lookup(name)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "EngineFactory.Open",
		"engine":      name,
		"sample_rate": sampleRate,
		"channels":    channels,
	}).Debug("Opening engine")

	return open(sampleRate, channels)
}

// EngineName returns the configured engine name.
func (f *EngineFactory) EngineName() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.Engine
}

// QueueSize returns the configured command queue capacity.
func (f *EngineFactory) QueueSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.config.QueueSize
}

// SwitchTo selects the engine registered under name.
func (f *EngineFactory) SwitchTo(name string) error {
	if _, err := Lookup(name); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "EngineFactory.SwitchTo",
			"engine":   name,
			"error":    err.Error(),
		}).Error("Cannot switch engine")
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "EngineFactory.SwitchTo",
		"previous": f.config.Engine,
		"current":  name,
	}).Info("Factory switched engine")

	f.config.Engine = strings.ToLower(strings.TrimSpace(name))
	return nil
}

// SwitchToLoopback selects the identity engine.
func (f *EngineFactory) SwitchToLoopback() {
	_ = f.SwitchTo(EngineLoopback)
}

// SwitchToLibopus selects the libopus engine.
func (f *EngineFactory) SwitchToLibopus() {
	_ = f.SwitchTo(EngineLibopus)
}

// GetCurrentConfig returns a copy of the current configuration.
func (f *EngineFactory) GetCurrentConfig() *Config {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return &Config{
		Engine:    f.config.Engine,
		QueueSize: f.config.QueueSize,
	}
}

// UpdateConfig replaces the configuration after validating it.
func (f *EngineFactory) UpdateConfig(config *Config) error {
	if err := config.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "EngineFactory.UpdateConfig",
			"error":    err.Error(),
		}).Error("Rejected factory configuration")
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "EngineFactory.UpdateConfig",
		"old_engine":     f.config.Engine,
		"new_engine":     config.Engine,
		"old_queue_size": f.config.QueueSize,
		"new_queue_size": config.QueueSize,
	}).Info("Updating factory configuration")

	f.config = &Config{
		Engine:    strings.ToLower(strings.TrimSpace(config.Engine)),
		QueueSize: config.QueueSize,
	}
	return nil
}
