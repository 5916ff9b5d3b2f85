package engine

import "errors"

// Sentinel errors returned by Engine implementations.
var (
	// ErrUnsupportedControl indicates the engine does not implement a control.
	ErrUnsupportedControl = errors.New("unsupported engine control")

	// ErrInvalidControlValue indicates a control value the engine refuses.
	ErrInvalidControlValue = errors.New("invalid engine control value")

	// ErrInvalidRate indicates a sample rate the engine cannot run at.
	ErrInvalidRate = errors.New("unsupported engine sample rate")

	// ErrInvalidChannels indicates an unsupported channel count.
	ErrInvalidChannels = errors.New("unsupported engine channel count")

	// ErrBufferTooSmall indicates an output buffer cannot hold the result.
	ErrBufferTooSmall = errors.New("engine buffer too small")

	// ErrClosed indicates the engine has already been closed.
	ErrClosed = errors.New("engine closed")

	// ErrEncode is returned by fakes when an encode failure is injected.
	ErrEncode = errors.New("engine encode failed")

	// ErrDecode is returned by fakes when a decode failure is injected.
	ErrDecode = errors.New("engine decode failed")
)
