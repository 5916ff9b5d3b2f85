package engine

import "fmt"

// Engine is a stateful encoder/decoder pair working on interleaved float32 PCM.
//
// Implementations are not required to be safe for concurrent use. A single
// Engine belongs to a single codec instance.
type Engine interface {
	// Encode compresses one frame of frameSize samples per channel into packet
	// and returns the number of bytes written.
	Encode(pcm []float32, frameSize int, packet []byte) (int, error)
	// Decode expands packet into pcm (at most frameSize samples per channel)
	// and returns the number of samples per channel decoded.
	Decode(packet []byte, frameSize int, pcm []float32) (int, error)
	// SetControl forwards one scalar encoder setting.
	SetControl(ctl Control, value int) error
	// Lookahead reports the encoder's algorithmic delay in samples.
	Lookahead() (int, error)
	// Reset clears encoder and decoder history while keeping settings.
	Reset() error
	// Close releases the encoder and decoder.
	Close() error
}

// Factory opens an Engine for a supported sample rate and channel count.
type Factory func(sampleRate, channels int) (Engine, error)

// Control identifies a scalar encoder setting.
type Control int

// Controls understood by the pipeline.
const (
	ControlBitrate Control = iota + 1
	ControlComplexity
	ControlVBR
	ControlVBRConstraint
	ControlSignal
	ControlDTX
	ControlInbandFEC
	ControlPacketLossPerc
)

// Signal hint values, matching the libopus OPUS_SIGNAL_* constants.
const (
	SignalVoice = 3001
	SignalMusic = 3002
)

var controlNames = map[Control]string{
	ControlBitrate:        "bitrate",
	ControlComplexity:     "complexity",
	ControlVBR:            "vbr",
	ControlVBRConstraint:  "vbr_constraint",
	ControlSignal:         "signal",
	ControlDTX:            "dtx",
	ControlInbandFEC:      "inband_fec",
	ControlPacketLossPerc: "packet_loss_perc",
}

// String returns the control's log name.
func (c Control) String() string {
	if name, ok := controlNames[c]; ok {
		return name
	}
	return fmt.Sprintf("control(%d)", int(c))
}

// BoolValue converts a flag to the integer form used by SetControl.
func BoolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
