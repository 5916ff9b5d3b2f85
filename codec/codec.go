package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/opusloop/engine"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// decoderDelayMs is the fixed decoder-side delay added to latency reports.
const decoderDelayMs = 6.5

// State is the lifecycle state of a Codec.
type State int

// Lifecycle states.
const (
	StateUninitialized State = iota
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts what the pipeline did since creation.
type Stats struct {
	// FramesEncoded counts complete round trips.
	FramesEncoded uint64
	// EncodeFailures and DecodeFailures count dropped frames by cause.
	EncodeFailures uint64
	DecodeFailures uint64
	// Overruns counts decoded frames refused by the output ring.
	Overruns uint64
	// UnderrunSamples counts pulls answered with silence.
	UnderrunSamples uint64
	// SamplesOut counts pulls answered with decoded audio.
	SamplesOut uint64
	// PacketBytes sums the sizes of all encoded packets.
	PacketBytes uint64
}

// FramesDropped returns the number of frames that produced no output.
func (s Stats) FramesDropped() uint64 {
	return s.EncodeFailures + s.DecodeFailures + s.Overruns
}

// Sub returns s minus prev, field by field.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		FramesEncoded:   s.FramesEncoded - prev.FramesEncoded,
		EncodeFailures:  s.EncodeFailures - prev.EncodeFailures,
		DecodeFailures:  s.DecodeFailures - prev.DecodeFailures,
		Overruns:        s.Overruns - prev.Overruns,
		UnderrunSamples: s.UnderrunSamples - prev.UnderrunSamples,
		SamplesOut:      s.SamplesOut - prev.SamplesOut,
		PacketBytes:     s.PacketBytes - prev.PacketBytes,
	}
}

// Codec is one round-trip pipeline instance bound to one engine.
type Codec struct {
	id         uuid.UUID
	state      State
	hostRate   float64
	sampleRate int
	frameSize  int
	params     Params

	eng    engine.Engine
	framer *Framer
	trip   *RoundTrip
	ring   *Ring
	stats  Stats
}

// New negotiates the engine rate for hostRate, opens a stereo engine through
// open and applies DefaultParams. No Codec is returned on failure and the
// engine, if opened, is closed again.
func New(hostRate float64, open engine.Factory) (*Codec, error) {
	id := uuid.New()
	logger := logrus.WithFields(logrus.Fields{
		"function":  "codec.New",
		"codec_id":  id.String(),
		"host_rate": hostRate,
	})
	logger.Info("Creating codec instance")

	if open == nil {
		logger.WithField("error", ErrNoEngine.Error()).Error("Codec creation failed")
		return nil, ErrNoEngine
	}

	rate := NegotiateRate(hostRate)
	eng, err := open(rate, Channels)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"engine_rate": rate,
			"error":       err.Error(),
		}).Error("Engine creation failed")
		return nil, fmt.Errorf("%w at %d Hz: %w", ErrEngineCreate, rate, err)
	}
	if eng == nil {
		logger.WithField("engine_rate", rate).Error("Engine factory returned no engine")
		return nil, fmt.Errorf("%w at %d Hz: nil engine", ErrEngineCreate, rate)
	}

	params := DefaultParams()
	for _, cv := range params.controls() {
		if err := eng.SetControl(cv.ctl, cv.value); err != nil {
			logger.WithFields(logrus.Fields{
				"control": cv.ctl.String(),
				"value":   cv.value,
				"error":   err.Error(),
			}).Error("Engine rejected default control")
			_ = eng.Close()
			return nil, fmt.Errorf("%w: default %s=%d: %w", ErrEngineCreate, cv.ctl, cv.value, err)
		}
	}

	frameSize := params.Frame.Samples(rate)
	c := &Codec{
		id:         id,
		state:      StateActive,
		hostRate:   hostRate,
		sampleRate: rate,
		frameSize:  frameSize,
		params:     params,
		eng:        eng,
		framer:     NewFramer(frameSize),
		trip:       NewRoundTrip(eng, frameSize),
		ring:       NewRing(frameSize),
	}

	logger.WithFields(logrus.Fields{
		"engine_rate": rate,
		"frame_size":  frameSize,
		"frame":       params.Frame.String(),
		"bitrate":     params.Bitrate,
		"complexity":  params.Complexity,
		"vbr_mode":    params.VBR.String(),
		"signal":      params.Signal.String(),
	}).Info("Codec instance created")

	return c, nil
}

// ID returns the instance identifier used in log fields.
func (c *Codec) ID() string { return c.id.String() }

// State returns the lifecycle state.
func (c *Codec) State() State {
	if c == nil {
		return StateUninitialized
	}
	return c.state
}

// HostRate returns the host sample rate the codec was created for.
func (c *Codec) HostRate() float64 { return c.hostRate }

// SampleRate returns the negotiated engine rate.
func (c *Codec) SampleRate() int { return c.sampleRate }

// FrameSize returns the frame size in samples per channel.
func (c *Codec) FrameSize() int { return c.frameSize }

// FrameDuration returns the current frame duration.
func (c *Codec) FrameDuration() FrameDuration { return c.params.Frame }

// Params returns the current parameter snapshot.
func (c *Codec) Params() Params { return c.params }

// Stats returns the counters accumulated so far.
func (c *Codec) Stats() Stats { return c.stats }

// Bandwidth returns the Opus audio bandwidth of the negotiated rate.
func (c *Codec) Bandwidth() opus.Bandwidth {
	return engine.BandwidthForRate(c.sampleRate)
}

// RingCapacity returns the output ring capacity in pairs.
func (c *Codec) RingCapacity() int {
	if c.ring == nil {
		return 0
	}
	return c.ring.Capacity()
}

// Buffered returns the number of decoded pairs waiting in the output ring.
func (c *Codec) Buffered() int {
	if c.ring == nil {
		return 0
	}
	return c.ring.Available()
}

// Pending returns the number of input pairs waiting for the current frame.
func (c *Codec) Pending() int {
	if c.framer == nil {
		return 0
	}
	return c.framer.Pending()
}

// ProcessSample pushes one input pair and pulls one output pair. It returns
// silence when the codec is not active or the ring lacks lead.
func (c *Codec) ProcessSample(left, right float32) (float32, float32) {
	if c.state != StateActive {
		return 0, 0
	}
	if c.framer.Push(left, right) {
		c.roundTrip()
	}
	outL, outR, ok := c.ring.Pull()
	if ok {
		c.stats.SamplesOut++
	} else {
		c.stats.UnderrunSamples++
	}
	return outL, outR
}

// ProcessBlock runs ProcessSample over equally sized blocks.
func (c *Codec) ProcessBlock(inL, inR, outL, outR []float32) error {
	n := len(inL)
	if len(inR) != n || len(outL) != n || len(outR) != n {
		return fmt.Errorf("%w: in %d/%d, out %d/%d", ErrBlockSize, len(inL), len(inR), len(outL), len(outR))
	}
	for i := 0; i < n; i++ {
		outL[i], outR[i] = c.ProcessSample(inL[i], inR[i])
	}
	return nil
}

// roundTrip sends the completed frame through the engine and queues the
// decoded audio. Failures drop the frame.
func (c *Codec) roundTrip() {
	decoded, err := c.trip.Do(c.framer.Frame(), c.frameSize)
	if err != nil {
		if errors.Is(err, ErrEncodeFailed) {
			c.stats.EncodeFailures++
		} else {
			c.stats.DecodeFailures++
			c.stats.PacketBytes += uint64(c.trip.PacketSize())
		}
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logrus.WithFields(logrus.Fields{
				"function": "Codec.roundTrip",
				"codec_id": c.id.String(),
				"error":    err.Error(),
			}).Debug("Dropped frame")
		}
		return
	}
	c.stats.PacketBytes += uint64(c.trip.PacketSize())

	if err := c.ring.Write(decoded, len(decoded)/Channels); err != nil {
		c.stats.Overruns++
		if logrus.IsLevelEnabled(logrus.WarnLevel) {
			logrus.WithFields(logrus.Fields{
				"function": "Codec.roundTrip",
				"codec_id": c.id.String(),
				"error":    err.Error(),
			}).Warn("Dropped decoded frame")
		}
		return
	}
	c.stats.FramesEncoded++
}

func (c *Codec) checkActive(function string) error {
	if c == nil || c.state != StateActive {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"error":    ErrClosed.Error(),
		}).Error("Codec is not active")
		return ErrClosed
	}
	return nil
}

// update commits next when every control is accepted by the engine. On a
// refusal the controls already applied are restored and nothing is stored.
func (c *Codec) update(function string, next Params, controls []controlValue, restore []controlValue) error {
	logger := logrus.WithFields(logrus.Fields{
		"function": function,
		"codec_id": c.id.String(),
	})

	for i, cv := range controls {
		if err := c.eng.SetControl(cv.ctl, cv.value); err != nil {
			for _, back := range restore[:min(i, len(restore))] {
				_ = c.eng.SetControl(back.ctl, back.value)
			}
			logger.WithFields(logrus.Fields{
				"control": cv.ctl.String(),
				"value":   cv.value,
				"error":   err.Error(),
			}).Warn("Engine rejected control, keeping previous value")
			return fmt.Errorf("%w: %s=%d: %w", ErrEngineControl, cv.ctl, cv.value, err)
		}
	}

	c.params = next
	logger.WithFields(logrus.Fields{
		"bitrate":     next.Bitrate,
		"complexity":  next.Complexity,
		"vbr_mode":    next.VBR.String(),
		"signal":      next.Signal.String(),
		"packet_loss": next.PacketLoss,
		"dtx":         next.DTX,
		"fec":         next.FEC,
	}).Info("Codec parameter updated")
	return nil
}

func rejectParam(function string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"error":    err.Error(),
	}).Error("Parameter validation failed")
	return err
}

// SetBitrate sets the target bitrate in bits per second, [6000, 510000].
func (c *Codec) SetBitrate(bitrate int) error {
	if err := ValidateBitrate(bitrate); err != nil {
		return rejectParam("Codec.SetBitrate", err)
	}
	if err := c.checkActive("Codec.SetBitrate"); err != nil {
		return err
	}
	next := c.params
	next.Bitrate = bitrate
	return c.update("Codec.SetBitrate", next,
		[]controlValue{{engine.ControlBitrate, bitrate}}, nil)
}

// SetComplexity sets the encoder complexity, [0, 10].
func (c *Codec) SetComplexity(complexity int) error {
	if err := ValidateComplexity(complexity); err != nil {
		return rejectParam("Codec.SetComplexity", err)
	}
	if err := c.checkActive("Codec.SetComplexity"); err != nil {
		return err
	}
	next := c.params
	next.Complexity = complexity
	return c.update("Codec.SetComplexity", next,
		[]controlValue{{engine.ControlComplexity, complexity}}, nil)
}

// SetVBRMode selects CBR, VBR or constrained VBR.
func (c *Codec) SetVBRMode(mode VBRMode) error {
	if err := ValidateVBRMode(mode); err != nil {
		return rejectParam("Codec.SetVBRMode", err)
	}
	if err := c.checkActive("Codec.SetVBRMode"); err != nil {
		return err
	}
	next := c.params
	next.VBR = mode
	return c.update("Codec.SetVBRMode", next, vbrControls(mode), vbrControls(c.params.VBR))
}

// SetSignal sets the voice/music content hint.
func (c *Codec) SetSignal(signal Signal) error {
	if err := ValidateSignal(signal); err != nil {
		return rejectParam("Codec.SetSignal", err)
	}
	if err := c.checkActive("Codec.SetSignal"); err != nil {
		return err
	}
	next := c.params
	next.Signal = signal
	return c.update("Codec.SetSignal", next,
		[]controlValue{{engine.ControlSignal, int(signal)}}, nil)
}

// SetPacketLoss sets the expected packet loss percentage, [0, 100].
func (c *Codec) SetPacketLoss(percentage int) error {
	if err := ValidatePacketLoss(percentage); err != nil {
		return rejectParam("Codec.SetPacketLoss", err)
	}
	if err := c.checkActive("Codec.SetPacketLoss"); err != nil {
		return err
	}
	next := c.params
	next.PacketLoss = percentage
	return c.update("Codec.SetPacketLoss", next,
		[]controlValue{{engine.ControlPacketLossPerc, percentage}}, nil)
}

// SetDTX toggles discontinuous transmission.
func (c *Codec) SetDTX(enable bool) error {
	if err := c.checkActive("Codec.SetDTX"); err != nil {
		return err
	}
	next := c.params
	next.DTX = enable
	return c.update("Codec.SetDTX", next,
		[]controlValue{{engine.ControlDTX, engine.BoolValue(enable)}}, nil)
}

// SetFEC toggles in-band forward error correction.
func (c *Codec) SetFEC(enable bool) error {
	if err := c.checkActive("Codec.SetFEC"); err != nil {
		return err
	}
	next := c.params
	next.FEC = enable
	return c.update("Codec.SetFEC", next,
		[]controlValue{{engine.ControlInbandFEC, engine.BoolValue(enable)}}, nil)
}

// SetFrameDuration changes the frame length. The input frame and the output
// ring are reallocated for the new size (ring capacity 4 frames) and all
// cursors return to zero, so any partial frame and buffered output are lost.
//
// Must not overlap with ProcessSample.
func (c *Codec) SetFrameDuration(d FrameDuration) error {
	if err := ValidateFrameDuration(d); err != nil {
		return rejectParam("Codec.SetFrameDuration", err)
	}
	if err := c.checkActive("Codec.SetFrameDuration"); err != nil {
		return err
	}

	frameSize := d.Samples(c.sampleRate)
	c.params.Frame = d
	c.frameSize = frameSize
	c.framer.Resize(frameSize)
	c.trip.Resize(frameSize)
	c.ring.Resize(frameSize)

	logrus.WithFields(logrus.Fields{
		"function":      "Codec.SetFrameDuration",
		"codec_id":      c.id.String(),
		"frame":         d.String(),
		"frame_size":    frameSize,
		"ring_capacity": c.ring.Capacity(),
	}).Info("Codec frame size updated")
	return nil
}

// Reset clears the engine's encoder and decoder history and zeroes the input
// frame. Buffers are kept and parameters are unchanged. The input buffer is
// cleared even when the engine reset fails.
func (c *Codec) Reset() error {
	if err := c.checkActive("Codec.Reset"); err != nil {
		return err
	}
	logger := logrus.WithFields(logrus.Fields{
		"function": "Codec.Reset",
		"codec_id": c.id.String(),
	})

	c.framer.Clear()
	if err := c.eng.Reset(); err != nil {
		logger.WithField("error", err.Error()).Error("Engine reset failed")
		return fmt.Errorf("%w: reset: %w", ErrEngineControl, err)
	}

	logger.Info("Codec state reset")
	return nil
}

// Latency estimates end-to-end delay in samples: engine lookahead plus one
// frame plus 6.5 ms of decoder delay. The output ring can add up to another
// frame on top of this depending on the input.
func (c *Codec) Latency() (int, error) {
	if err := c.checkActive("Codec.Latency"); err != nil {
		return 0, err
	}
	lookahead, err := c.eng.Lookahead()
	if err != nil {
		return 0, fmt.Errorf("%w: lookahead: %w", ErrEngineControl, err)
	}
	decoderDelay := int(float64(c.sampleRate) * decoderDelayMs / 1000)
	return lookahead + c.frameSize + decoderDelay, nil
}

// LatencyDuration is Latency expressed as a duration at the engine rate.
func (c *Codec) LatencyDuration() (time.Duration, error) {
	samples, err := c.Latency()
	if err != nil {
		return 0, err
	}
	return time.Duration(samples) * time.Second / time.Duration(c.sampleRate), nil
}

// Close releases the engine and all buffers. It is safe to call on a nil
// Codec and more than once.
func (c *Codec) Close() error {
	if c == nil || c.state == StateDestroyed {
		return nil
	}
	logger := logrus.WithFields(logrus.Fields{
		"function": "Codec.Close",
		"codec_id": c.id.String(),
	})

	var err error
	if c.eng != nil {
		err = c.eng.Close()
	}
	c.eng = nil
	c.framer = nil
	c.trip = nil
	c.ring = nil
	c.state = StateDestroyed

	if err != nil {
		logger.WithField("error", err.Error()).Error("Engine close failed")
		return fmt.Errorf("close engine: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"frames_encoded": c.stats.FramesEncoded,
		"frames_dropped": c.stats.FramesDropped(),
	}).Info("Codec instance destroyed")
	return nil
}
