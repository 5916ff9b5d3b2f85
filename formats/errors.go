package formats

import "errors"

var (
	// ErrUnknownFormat is returned for a file extension or format name with
	// no decoder.
	ErrUnknownFormat = errors.New("unknown audio format")

	// ErrNotWAV is returned when a file does not carry a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a WAV file")

	// ErrUnsupportedEncoding is returned for WAV files that are not integer
	// PCM of 8, 16, 24 or 32 bits.
	ErrUnsupportedEncoding = errors.New("unsupported WAV encoding")

	// ErrNoChannels is returned for a stream that reports zero channels.
	ErrNoChannels = errors.New("stream has no channels")
)
