package engine

import (
	"encoding/binary"
	"fmt"
)

// loopbackHeader is the size of the packet Loopback hands out: the frame
// length as a little-endian uint32. The audio itself stays in engine memory.
const loopbackHeader = 4

// Loopback is an identity Engine. Encode keeps the frame, Decode returns it
// unchanged, so the pipeline around it can be tested sample-exactly.
//
// The exported fields record what the pipeline did and let tests inject
// failures. Loopback is not safe for concurrent use.
type Loopback struct {
	// OpenErr, when set, is returned by Open.
	OpenErr error
	// Reject makes SetControl refuse the listed controls.
	Reject map[Control]bool
	// RejectValue, when set, refuses single control values.
	RejectValue func(ctl Control, value int) bool
	// FailEncode and FailDecode are consulted with the 1-based call number.
	FailEncode func(call int) bool
	FailDecode func(call int) bool
	// DecodeLimit caps the samples per channel Decode reports when > 0.
	DecodeLimit int
	// LookaheadSamples overrides the reported lookahead when > 0.
	LookaheadSamples int

	SampleRate int
	Channels   int
	Controls   map[Control]int
	Encodes    int
	Decodes    int
	Resets     int
	Closes     int
	Closed     bool

	frame []float32
}

// NewLoopback returns an unopened Loopback. Use Open (or the method value
// l.Open as a Factory) to bind it to a rate.
func NewLoopback() *Loopback {
	return &Loopback{
		Reject:   make(map[Control]bool),
		Controls: make(map[Control]int),
	}
}

// OpenLoopback is a Factory producing a fresh Loopback per call.
func OpenLoopback(sampleRate, channels int) (Engine, error) {
	return NewLoopback().Open(sampleRate, channels)
}

// Open binds the engine to a rate and channel count.
func (l *Loopback) Open(sampleRate, channels int) (Engine, error) {
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d Hz", ErrInvalidRate, sampleRate)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}
	l.SampleRate = sampleRate
	l.Channels = channels
	l.Closed = false
	if l.Controls == nil {
		l.Controls = make(map[Control]int)
	}
	return l, nil
}

// Encode stores the frame and writes a length header into packet.
func (l *Loopback) Encode(pcm []float32, frameSize int, packet []byte) (int, error) {
	if l.Closed {
		return 0, ErrClosed
	}
	l.Encodes++
	if l.FailEncode != nil && l.FailEncode(l.Encodes) {
		return 0, ErrEncode
	}
	samples := frameSize * l.Channels
	if frameSize <= 0 || len(pcm) < samples {
		return 0, fmt.Errorf("%w: need %d samples, have %d", ErrBufferTooSmall, samples, len(pcm))
	}
	if len(packet) < loopbackHeader {
		return 0, fmt.Errorf("%w: packet %d bytes", ErrBufferTooSmall, len(packet))
	}
	if cap(l.frame) < samples {
		l.frame = make([]float32, samples)
	}
	l.frame = l.frame[:samples]
	copy(l.frame, pcm[:samples])
	binary.LittleEndian.PutUint32(packet, uint32(frameSize))
	return loopbackHeader, nil
}

// Decode returns the frame stored by the preceding Encode.
func (l *Loopback) Decode(packet []byte, frameSize int, pcm []float32) (int, error) {
	if l.Closed {
		return 0, ErrClosed
	}
	l.Decodes++
	if l.FailDecode != nil && l.FailDecode(l.Decodes) {
		return 0, ErrDecode
	}
	if len(packet) < loopbackHeader {
		return 0, fmt.Errorf("%w: short packet", ErrDecode)
	}
	n := int(binary.LittleEndian.Uint32(packet))
	if n > frameSize || n*l.Channels > len(l.frame) {
		return 0, fmt.Errorf("%w: packet holds %d samples", ErrDecode, n)
	}
	if l.DecodeLimit > 0 && n > l.DecodeLimit {
		n = l.DecodeLimit
	}
	if len(pcm) < n*l.Channels {
		return 0, fmt.Errorf("%w: need %d samples, have %d", ErrBufferTooSmall, n*l.Channels, len(pcm))
	}
	copy(pcm, l.frame[:n*l.Channels])
	return n, nil
}

// SetControl records the value unless Reject or RejectValue refuses it.
func (l *Loopback) SetControl(ctl Control, value int) error {
	if l.Closed {
		return ErrClosed
	}
	if l.Reject[ctl] || (l.RejectValue != nil && l.RejectValue(ctl, value)) {
		return fmt.Errorf("%w: %s=%d", ErrInvalidControlValue, ctl, value)
	}
	l.Controls[ctl] = value
	return nil
}

// Lookahead reports LookaheadSamples, or the libopus figure for the bound rate.
func (l *Loopback) Lookahead() (int, error) {
	if l.Closed {
		return 0, ErrClosed
	}
	if l.LookaheadSamples > 0 {
		return l.LookaheadSamples, nil
	}
	return l.SampleRate/400 + l.SampleRate/250, nil
}

// Reset forgets the stored frame.
func (l *Loopback) Reset() error {
	if l.Closed {
		return ErrClosed
	}
	l.Resets++
	for i := range l.frame {
		l.frame[i] = 0
	}
	return nil
}

// Close marks the engine closed. Closing twice is harmless.
func (l *Loopback) Close() error {
	l.Closes++
	l.Closed = true
	return nil
}
