package codec

import "errors"

// Construction errors.
var (
	// ErrEngineCreate indicates the engine could not be opened for the rate.
	ErrEngineCreate = errors.New("engine creation failed")

	// ErrNoEngine indicates a nil engine factory.
	ErrNoEngine = errors.New("no engine factory")
)

// Parameter errors.
var (
	// ErrInvalidParameter indicates a value outside its documented range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrEngineControl indicates the engine refused an in-range setting.
	ErrEngineControl = errors.New("engine rejected control")
)

// Processing errors. Encode and decode failures never leave the codec; they
// are returned by RoundTrip so the codec can count them.
var (
	// ErrEncodeFailed indicates the engine produced no packet for a frame.
	ErrEncodeFailed = errors.New("frame encode failed")

	// ErrDecodeFailed indicates the engine produced no samples for a packet.
	ErrDecodeFailed = errors.New("frame decode failed")

	// ErrRingOverrun indicates a write would overwrite unread output.
	ErrRingOverrun = errors.New("output ring overrun")

	// ErrBlockSize indicates mismatched input/output block lengths.
	ErrBlockSize = errors.New("block length mismatch")
)

// Lifecycle errors.
var (
	// ErrClosed indicates the codec has been destroyed.
	ErrClosed = errors.New("codec closed")
)
