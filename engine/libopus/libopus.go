//go:build (linux && (amd64 || arm64)) || (darwin && amd64)

// Package libopus implements engine.Engine on top of the system libopus,
// loaded at run time with purego. Every engine.Control maps onto an
// opus_encoder_ctl request, so the full control set reaches the encoder.
package libopus

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/opd-ai/opusloop/engine"
	"github.com/sirupsen/logrus"
)

const (
	applicationAudio = 2049

	opusOK             = 0
	opusBadArg         = -1
	opusBufferTooSmall = -2
	opusUnimplemented  = -5

	ctlResetState   = 4028
	ctlGetLookahead = 4027
)

// ctlRequests maps each control to its OPUS_SET_* request. The matching
// OPUS_GET_* request is always one higher.
var ctlRequests = map[engine.Control]int32{
	engine.ControlBitrate:        4002,
	engine.ControlVBR:            4006,
	engine.ControlComplexity:     4010,
	engine.ControlInbandFEC:      4012,
	engine.ControlPacketLossPerc: 4014,
	engine.ControlDTX:            4016,
	engine.ControlVBRConstraint:  4020,
	engine.ControlSignal:         4024,
}

// Engine pairs one libopus encoder with one decoder at the same rate.
type Engine struct {
	enc        uintptr
	dec        uintptr
	sampleRate int
	channels   int
	// out receives OPUS_GET_* results.
	out int32
}

// Open is an engine.Factory for libopus.
func Open(sampleRate, channels int) (engine.Engine, error) {
	e, err := New(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// New creates an encoder (application audio) and a decoder.
func New(sampleRate, channels int) (*Engine, error) {
	logrus.WithFields(logrus.Fields{
		"function":    "libopus.New",
		"sample_rate": sampleRate,
		"channels":    channels,
	}).Debug("Creating libopus engine")

	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("%w: %d Hz", engine.ErrInvalidRate, sampleRate)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d", engine.ErrInvalidChannels, channels)
	}
	if err := load(); err != nil {
		return nil, err
	}

	var code int32
	enc := opusEncoderCreate(int32(sampleRate), int32(channels), applicationAudio, unsafe.Pointer(&code))
	if code != opusOK || enc == 0 {
		return nil, fmt.Errorf("libopus: create encoder: %w", codeError(code))
	}
	dec := opusDecoderCreate(int32(sampleRate), int32(channels), unsafe.Pointer(&code))
	if code != opusOK || dec == 0 {
		opusEncoderDestroy(enc)
		return nil, fmt.Errorf("libopus: create decoder: %w", codeError(code))
	}

	return &Engine{
		enc:        enc,
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Encode compresses one frame of float PCM into packet.
func (e *Engine) Encode(pcm []float32, frameSize int, packet []byte) (int, error) {
	if e.enc == 0 {
		return 0, engine.ErrClosed
	}
	samples := frameSize * e.channels
	if frameSize <= 0 || len(pcm) < samples {
		return 0, fmt.Errorf("%w: need %d samples, have %d", engine.ErrBufferTooSmall, samples, len(pcm))
	}
	if len(packet) == 0 {
		return 0, fmt.Errorf("%w: empty packet buffer", engine.ErrBufferTooSmall)
	}

	n := opusEncodeFloat(e.enc, unsafe.Pointer(&pcm[0]), int32(frameSize), unsafe.Pointer(&packet[0]), int32(len(packet)))
	runtime.KeepAlive(pcm)
	runtime.KeepAlive(packet)
	if n < 0 {
		if n == opusBufferTooSmall {
			return 0, fmt.Errorf("%w: packet of %d bytes", engine.ErrBufferTooSmall, len(packet))
		}
		return 0, fmt.Errorf("libopus: encode: %w", codeError(n))
	}
	return int(n), nil
}

// Decode expands one packet into pcm and returns samples per channel.
// An empty packet asks libopus for loss concealment.
func (e *Engine) Decode(packet []byte, frameSize int, pcm []float32) (int, error) {
	if e.dec == 0 {
		return 0, engine.ErrClosed
	}
	if frameSize <= 0 || len(pcm) < frameSize*e.channels {
		return 0, fmt.Errorf("%w: need %d samples, have %d", engine.ErrBufferTooSmall, frameSize*e.channels, len(pcm))
	}

	var data unsafe.Pointer
	if len(packet) > 0 {
		data = unsafe.Pointer(&packet[0])
	}
	n := opusDecodeFloat(e.dec, data, int32(len(packet)), unsafe.Pointer(&pcm[0]), int32(frameSize), 0)
	runtime.KeepAlive(packet)
	runtime.KeepAlive(pcm)
	if n < 0 {
		if n == opusBufferTooSmall {
			return 0, fmt.Errorf("%w: frame of %d samples", engine.ErrBufferTooSmall, frameSize)
		}
		return 0, fmt.Errorf("libopus: decode: %w", codeError(n))
	}
	return int(n), nil
}

// SetControl issues the OPUS_SET_* request for ctl.
func (e *Engine) SetControl(ctl engine.Control, value int) error {
	if e.enc == 0 {
		return engine.ErrClosed
	}
	req, ok := ctlRequests[ctl]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnsupportedControl, ctl)
	}
	return ctlError(ctl, value, opusEncoderCtlSet(e.enc, req, int32(value)))
}

// Control reads a setting back with the OPUS_GET_* request for ctl.
func (e *Engine) Control(ctl engine.Control) (int, error) {
	if e.enc == 0 {
		return 0, engine.ErrClosed
	}
	req, ok := ctlRequests[ctl]
	if !ok {
		return 0, fmt.Errorf("%w: %s", engine.ErrUnsupportedControl, ctl)
	}
	return e.get(req + 1)
}

// Lookahead queries OPUS_GET_LOOKAHEAD.
func (e *Engine) Lookahead() (int, error) {
	if e.enc == 0 {
		return 0, engine.ErrClosed
	}
	return e.get(ctlGetLookahead)
}

func (e *Engine) get(req int32) (int, error) {
	e.out = 0
	code := opusEncoderCtlGet(e.enc, req, unsafe.Pointer(&e.out))
	if code != opusOK {
		return 0, fmt.Errorf("libopus: ctl %d: %w", req, codeError(code))
	}
	return int(e.out), nil
}

// Reset clears encoder and decoder history. Settings survive.
func (e *Engine) Reset() error {
	if e.enc == 0 || e.dec == 0 {
		return engine.ErrClosed
	}
	if code := opusEncoderCtlSet(e.enc, ctlResetState, 0); code != opusOK {
		return fmt.Errorf("libopus: reset encoder: %w", codeError(code))
	}
	if code := opusDecoderCtlSet(e.dec, ctlResetState, 0); code != opusOK {
		return fmt.Errorf("libopus: reset decoder: %w", codeError(code))
	}
	return nil
}

// Close destroys the encoder and decoder. Closing twice is a no-op.
func (e *Engine) Close() error {
	if e.enc != 0 {
		opusEncoderDestroy(e.enc)
		e.enc = 0
	}
	if e.dec != 0 {
		opusDecoderDestroy(e.dec)
		e.dec = 0
	}
	return nil
}

func ctlError(ctl engine.Control, value int, code int32) error {
	switch code {
	case opusOK:
		return nil
	case opusBadArg:
		return fmt.Errorf("%w: %s=%d", engine.ErrInvalidControlValue, ctl, value)
	case opusUnimplemented:
		return fmt.Errorf("%w: %s", engine.ErrUnsupportedControl, ctl)
	default:
		return fmt.Errorf("libopus: %s=%d: %w", ctl, value, codeError(code))
	}
}
