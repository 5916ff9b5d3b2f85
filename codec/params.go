package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/opusloop/engine"
)

// Parameter bounds.
const (
	MinBitrate    = 6000
	MaxBitrate    = 510000
	MinComplexity = 0
	MaxComplexity = 10
	MinPacketLoss = 0
	MaxPacketLoss = 100
)

// Engine-facing sizes.
const (
	// Channels is the fixed channel count of the pipeline.
	Channels = 2
	// MaxPacketSize bounds one compressed packet in bytes.
	MaxPacketSize = 4000
	// RingFrames is the output ring capacity in frames.
	RingFrames = 4
)

// VBRMode selects the encoder's bitrate behaviour.
type VBRMode int

// Bitrate modes.
const (
	CBR  VBRMode = 0
	VBR  VBRMode = 1
	CVBR VBRMode = 2
)

// String returns the conventional mode name.
func (m VBRMode) String() string {
	switch m {
	case CBR:
		return "CBR"
	case VBR:
		return "VBR"
	case CVBR:
		return "CVBR"
	default:
		return "VBRMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseVBRMode maps "cbr", "vbr" or "cvbr" (any case) to a VBRMode.
func ParseVBRMode(name string) (VBRMode, error) {
	switch strings.ToLower(name) {
	case "cbr":
		return CBR, nil
	case "vbr":
		return VBR, nil
	case "cvbr":
		return CVBR, nil
	default:
		return 0, fmt.Errorf("%w: VBR mode %q must be \"cbr\", \"vbr\" or \"cvbr\"", ErrInvalidParameter, name)
	}
}

// Signal is the content hint passed to the encoder.
type Signal int

// Signal hints.
const (
	SignalVoice Signal = engine.SignalVoice
	SignalMusic Signal = engine.SignalMusic
)

// String returns "voice" or "music".
func (s Signal) String() string {
	switch s {
	case SignalVoice:
		return "voice"
	case SignalMusic:
		return "music"
	default:
		return "Signal(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseSignal accepts "voice" or "music".
func ParseSignal(name string) (Signal, error) {
	switch name {
	case "voice":
		return SignalVoice, nil
	case "music":
		return SignalMusic, nil
	default:
		return 0, fmt.Errorf("%w: signal %q must be \"voice\" or \"music\"", ErrInvalidParameter, name)
	}
}

// FrameDuration is one of the six frame lengths the engine accepts.
type FrameDuration time.Duration

// Frame durations.
const (
	Frame2_5ms = FrameDuration(2500 * time.Microsecond)
	Frame5ms   = FrameDuration(5 * time.Millisecond)
	Frame10ms  = FrameDuration(10 * time.Millisecond)
	Frame20ms  = FrameDuration(20 * time.Millisecond)
	Frame40ms  = FrameDuration(40 * time.Millisecond)
	Frame60ms  = FrameDuration(60 * time.Millisecond)
)

var frameDurations = []FrameDuration{Frame2_5ms, Frame5ms, Frame10ms, Frame20ms, Frame40ms, Frame60ms}

// FrameDurations returns the accepted frame durations in ascending order.
func FrameDurations() []FrameDuration {
	out := make([]FrameDuration, len(frameDurations))
	copy(out, frameDurations)
	return out
}

// ParseFrameDuration maps a millisecond value such as 2.5 or 20 to a
// FrameDuration. Only exact matches are accepted.
func ParseFrameDuration(ms float64) (FrameDuration, error) {
	for _, d := range frameDurations {
		if d.Milliseconds() == ms {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: frame size %g ms must be 2.5, 5, 10, 20, 40, or 60 ms", ErrInvalidParameter, ms)
}

// Valid reports whether d is one of the accepted durations.
func (d FrameDuration) Valid() bool {
	for _, v := range frameDurations {
		if d == v {
			return true
		}
	}
	return false
}

// Milliseconds returns the duration in (possibly fractional) milliseconds.
func (d FrameDuration) Milliseconds() float64 {
	return float64(d) / float64(time.Millisecond)
}

// Samples returns the frame length in samples per channel at rate.
func (d FrameDuration) Samples(rate int) int {
	return int(math.Round(float64(rate) * d.Milliseconds() / 1000))
}

func (d FrameDuration) String() string {
	return time.Duration(d).String()
}

// Params is a snapshot of the codec's mutable settings.
type Params struct {
	Bitrate    int
	Complexity int
	VBR        VBRMode
	Signal     Signal
	PacketLoss int
	DTX        bool
	FEC        bool
	Frame      FrameDuration
}

// DefaultParams is the set applied at creation: 6 kbps, complexity 0, CBR,
// music, no loss resilience, no DTX or FEC, 20 ms frames.
func DefaultParams() Params {
	return Params{
		Bitrate:    MinBitrate,
		Complexity: 0,
		VBR:        CBR,
		Signal:     SignalMusic,
		PacketLoss: 0,
		DTX:        false,
		FEC:        false,
		Frame:      Frame20ms,
	}
}

// Validate checks every field and reports all violations.
func (p Params) Validate() error {
	return errors.Join(
		ValidateBitrate(p.Bitrate),
		ValidateComplexity(p.Complexity),
		ValidateVBRMode(p.VBR),
		ValidateSignal(p.Signal),
		ValidatePacketLoss(p.PacketLoss),
		ValidateFrameDuration(p.Frame),
	)
}

// ValidateBitrate checks bitrate ∈ [6000, 510000] bits per second.
func ValidateBitrate(bitrate int) error {
	if bitrate < MinBitrate || bitrate > MaxBitrate {
		return fmt.Errorf("%w: bitrate %d must be between %d and %d bps", ErrInvalidParameter, bitrate, MinBitrate, MaxBitrate)
	}
	return nil
}

// ValidateComplexity checks complexity ∈ [0, 10].
func ValidateComplexity(complexity int) error {
	if complexity < MinComplexity || complexity > MaxComplexity {
		return fmt.Errorf("%w: complexity %d must be between %d and %d", ErrInvalidParameter, complexity, MinComplexity, MaxComplexity)
	}
	return nil
}

// ValidateVBRMode checks mode ∈ {CBR, VBR, CVBR}.
func ValidateVBRMode(mode VBRMode) error {
	if mode < CBR || mode > CVBR {
		return fmt.Errorf("%w: VBR mode %d must be 0 (CBR), 1 (VBR), or 2 (CVBR)", ErrInvalidParameter, int(mode))
	}
	return nil
}

// ValidateSignal checks the hint is voice or music.
func ValidateSignal(signal Signal) error {
	if signal != SignalVoice && signal != SignalMusic {
		return fmt.Errorf("%w: signal %d must be voice or music", ErrInvalidParameter, int(signal))
	}
	return nil
}

// ValidatePacketLoss checks percentage ∈ [0, 100].
func ValidatePacketLoss(percentage int) error {
	if percentage < MinPacketLoss || percentage > MaxPacketLoss {
		return fmt.Errorf("%w: packet loss %d must be between %d and %d percent", ErrInvalidParameter, percentage, MinPacketLoss, MaxPacketLoss)
	}
	return nil
}

// ValidateFrameDuration checks d is one of the accepted durations.
func ValidateFrameDuration(d FrameDuration) error {
	if !d.Valid() {
		return fmt.Errorf("%w: frame duration %s must be 2.5, 5, 10, 20, 40, or 60 ms", ErrInvalidParameter, d)
	}
	return nil
}

// vbrControls returns the (VBR, constraint) engine values for a mode.
// CBR leaves the constraint untouched.
func vbrControls(mode VBRMode) []controlValue {
	switch mode {
	case VBR:
		return []controlValue{{engine.ControlVBR, 1}, {engine.ControlVBRConstraint, 0}}
	case CVBR:
		return []controlValue{{engine.ControlVBR, 1}, {engine.ControlVBRConstraint, 1}}
	default:
		return []controlValue{{engine.ControlVBR, 0}}
	}
}

// controlValue is one engine control assignment.
type controlValue struct {
	ctl   engine.Control
	value int
}

// controls returns the full engine control list for p, in the order the
// codec applies them at creation.
func (p Params) controls() []controlValue {
	list := []controlValue{
		{engine.ControlBitrate, p.Bitrate},
		{engine.ControlComplexity, p.Complexity},
	}
	list = append(list, vbrControls(p.VBR)...)
	return append(list,
		controlValue{engine.ControlSignal, int(p.Signal)},
		controlValue{engine.ControlDTX, engine.BoolValue(p.DTX)},
		controlValue{engine.ControlInbandFEC, engine.BoolValue(p.FEC)},
		controlValue{engine.ControlPacketLossPerc, p.PacketLoss},
	)
}
