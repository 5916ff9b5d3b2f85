package codec

import (
	"fmt"

	"github.com/opd-ai/opusloop/engine"
)

// RoundTrip sends one interleaved frame through exactly one encode and one
// decode. The compressed packet lives in a scratch buffer and never leaves.
type RoundTrip struct {
	eng        engine.Engine
	packet     []byte
	decoded    []float32
	packetSize int
}

// NewRoundTrip prepares scratch buffers for frames of frameSize samples.
func NewRoundTrip(eng engine.Engine, frameSize int) *RoundTrip {
	rt := &RoundTrip{
		eng:    eng,
		packet: make([]byte, MaxPacketSize),
	}
	rt.Resize(frameSize)
	return rt
}

// Resize reallocates the decode buffer for a new frame size.
func (rt *RoundTrip) Resize(frameSize int) {
	rt.decoded = make([]float32, frameSize*Channels)
}

// Do encodes frame, decodes the packet and returns the decoded interleaved
// samples. The length of the result follows the engine's reported sample
// count. The slice is reused by the next call.
func (rt *RoundTrip) Do(frame []float32, frameSize int) ([]float32, error) {
	rt.packetSize = 0

	n, err := rt.eng.Encode(frame, frameSize, rt.packet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrEncodeFailed, n)
	}
	rt.packetSize = n

	samples, err := rt.eng.Decode(rt.packet[:n], frameSize, rt.decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if samples <= 0 {
		return nil, fmt.Errorf("%w: %d samples", ErrDecodeFailed, samples)
	}
	if samples*Channels > len(rt.decoded) {
		return nil, fmt.Errorf("%w: %d samples exceed frame of %d", ErrDecodeFailed, samples, frameSize)
	}
	return rt.decoded[:samples*Channels], nil
}

// PacketSize returns the byte length of the last encoded packet, or zero if
// the last encode failed.
func (rt *RoundTrip) PacketSize() int {
	return rt.packetSize
}
