//go:build !((linux && (amd64 || arm64)) || (darwin && amd64))

// Package libopus implements engine.Engine on top of the system libopus.
// This platform passes variadic C arguments in a way the run-time binding
// cannot express, so every constructor reports ErrUnavailable.
package libopus

import (
	"fmt"
	"runtime"

	"github.com/opd-ai/opusloop/engine"
)

// EnvLibrary names an explicit libopus shared object to load first.
const EnvLibrary = "OPUSLOOP_LIBOPUS"

var errPlatform = fmt.Errorf("%w on %s/%s", ErrUnavailable, runtime.GOOS, runtime.GOARCH)

// Engine is never constructed on this platform.
type Engine struct{}

// Available always fails here.
func Available() error { return errPlatform }

// Version returns "".
func Version() string { return "" }

// Open is an engine.Factory that always fails here.
func Open(sampleRate, channels int) (engine.Engine, error) { return nil, errPlatform }

// New always fails here.
func New(sampleRate, channels int) (*Engine, error) { return nil, errPlatform }

func (*Engine) Encode([]float32, int, []byte) (int, error) { return 0, engine.ErrClosed }
func (*Engine) Decode([]byte, int, []float32) (int, error) { return 0, engine.ErrClosed }
func (*Engine) SetControl(engine.Control, int) error       { return engine.ErrClosed }
func (*Engine) Control(engine.Control) (int, error)        { return 0, engine.ErrClosed }
func (*Engine) Lookahead() (int, error)                    { return 0, engine.ErrClosed }
func (*Engine) Reset() error                               { return engine.ErrClosed }
func (*Engine) Close() error                               { return nil }
