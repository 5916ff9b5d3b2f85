package opusloop

import "errors"

var (
	// ErrQueueFull is returned when the command queue has no room. The
	// desired parameters are unchanged.
	ErrQueueFull = errors.New("command queue full")

	// ErrCodecInitialization is returned when a codec cannot be created for
	// the host rate.
	ErrCodecInitialization = errors.New("codec initialization failed")

	// ErrBlockSize is returned by Process for buffers of unequal length.
	ErrBlockSize = errors.New("input and output blocks differ in length")

	// ErrClosed is returned by every method of a closed Processor.
	ErrClosed = errors.New("processor closed")

	// ErrLatencyUnavailable is returned by Latency when the engine could not
	// report its lookahead.
	ErrLatencyUnavailable = errors.New("latency unavailable")
)
