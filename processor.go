package opusloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/opusloop/codec"
	"github.com/opd-ai/opusloop/engine"
	"github.com/opd-ai/opusloop/factory"
	"github.com/opd-ai/opusloop/metrics"
	"github.com/sirupsen/logrus"
)

// Stats are cumulative counters of a Processor across codec swaps.
type Stats struct {
	FramesEncoded    uint64
	FramesDropped    uint64
	UnderrunSamples  uint64
	SamplesOut       uint64
	PacketBytes      uint64
	CommandsApplied  uint64
	CommandsRejected uint64
}

type counters struct {
	framesEncoded    atomic.Uint64
	framesDropped    atomic.Uint64
	underrunSamples  atomic.Uint64
	samplesOut       atomic.Uint64
	packetBytes      atomic.Uint64
	commandsApplied  atomic.Uint64
	commandsRejected atomic.Uint64
}

func (c *counters) add(d codec.Stats) {
	c.framesEncoded.Add(d.FramesEncoded)
	c.framesDropped.Add(d.FramesDropped())
	c.underrunSamples.Add(d.UnderrunSamples)
	c.samplesOut.Add(d.SamplesOut)
	c.packetBytes.Add(d.PacketBytes)
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesEncoded:    c.framesEncoded.Load(),
		FramesDropped:    c.framesDropped.Load(),
		UnderrunSamples:  c.underrunSamples.Load(),
		SamplesOut:       c.samplesOut.Load(),
		PacketBytes:      c.packetBytes.Load(),
		CommandsApplied:  c.commandsApplied.Load(),
		CommandsRejected: c.commandsRejected.Load(),
	}
}

// Processor is the host-facing facade around one codec.
//
// Process must be called from a single audio thread. All other methods are
// safe for concurrent use.
type Processor struct {
	id       uuid.UUID
	open     engine.Factory
	metrics  *metrics.Metrics
	clock    TimeProvider
	ctx      context.Context
	commands chan command
	bypass   atomic.Bool
	closed   atomic.Bool
	latency  atomic.Int64
	totals   counters

	// mu guards desired and hostRate, and orders queue sends against Close.
	mu       sync.Mutex
	desired  codec.Params
	hostRate float64

	// audio is held by Process and Close. Process never waits for it.
	audio     sync.Mutex
	codec     *codec.Codec
	lastStats codec.Stats
}

// New creates a Processor for hostRate. A nil opts uses NewOptions.
func New(hostRate float64, opts *Options) (*Processor, error) {
	if opts == nil {
		opts = NewOptions()
	}
	id := uuid.New()
	logger := logrus.WithFields(logrus.Fields{
		"function":     "New",
		"processor_id": id.String(),
		"host_rate":    hostRate,
	})
	logger.Info("Creating processor")

	if err := opts.Params.Validate(); err != nil {
		logger.WithField("error", err.Error()).Error("Invalid initial parameters")
		return nil, err
	}

	open := opts.Engine
	queueSize := opts.QueueSize
	if open == nil || queueSize <= 0 {
		f := factory.NewEngineFactory()
		if open == nil {
			open = f.Open
		}
		if queueSize <= 0 {
			queueSize = f.QueueSize()
		}
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = WallClock{}
	}

	c, err := newCodec(hostRate, open, opts.Params)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Processor creation failed")
		return nil, err
	}

	p := &Processor{
		id:       id,
		open:     open,
		metrics:  opts.Metrics,
		clock:    clock,
		ctx:      context.Background(),
		commands: make(chan command, queueSize),
		desired:  c.Params(),
		hostRate: hostRate,
	}
	p.bypass.Store(opts.Bypass)
	p.install(c)

	if p.metrics != nil {
		p.metrics.ActiveProcessors.Add(p.ctx, 1)
	}

	logger.WithFields(logrus.Fields{
		"codec_id":    c.ID(),
		"engine_rate": c.SampleRate(),
		"frame_size":  c.FrameSize(),
		"queue_size":  queueSize,
		"bypass":      opts.Bypass,
	}).Info("Processor created")
	return p, nil
}

// newCodec creates a codec and applies params on top of its defaults.
func newCodec(hostRate float64, open engine.Factory, params codec.Params) (*codec.Codec, error) {
	c, err := codec.New(hostRate, open)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodecInitialization, err)
	}
	applyParams(c, params)
	return c, nil
}

// applyParams brings c to params. Values the engine refuses keep the codec's
// current setting.
func applyParams(c *codec.Codec, params codec.Params) {
	have := c.Params()
	var steps []command
	if params.Frame != have.Frame {
		steps = append(steps, command{kind: cmdFrameSize, frame: params.Frame})
	}
	if params.Bitrate != have.Bitrate {
		steps = append(steps, command{kind: cmdBitrate, value: params.Bitrate})
	}
	if params.Complexity != have.Complexity {
		steps = append(steps, command{kind: cmdComplexity, value: params.Complexity})
	}
	if params.VBR != have.VBR {
		steps = append(steps, command{kind: cmdVBRMode, value: int(params.VBR)})
	}
	if params.Signal != have.Signal {
		steps = append(steps, command{kind: cmdSignal, value: int(params.Signal)})
	}
	if params.PacketLoss != have.PacketLoss {
		steps = append(steps, command{kind: cmdPacketLoss, value: params.PacketLoss})
	}
	if params.DTX != have.DTX {
		steps = append(steps, command{kind: cmdDTX, value: engine.BoolValue(params.DTX)})
	}
	if params.FEC != have.FEC {
		steps = append(steps, command{kind: cmdFEC, value: engine.BoolValue(params.FEC)})
	}

	for _, step := range steps {
		if err := step.apply(c); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "applyParams",
				"codec_id": c.ID(),
				"command":  step.kind.String(),
				"error":    err.Error(),
			}).Warn("Engine rejected desired parameter, keeping codec value")
		}
	}
}

// install makes c the active codec. Audio thread or construction only.
func (p *Processor) install(c *codec.Codec) {
	p.codec = c
	p.lastStats = c.Stats()
	p.refreshLatency()
}

func (p *Processor) refreshLatency() {
	if p.codec == nil {
		p.latency.Store(-1)
		return
	}
	samples, err := p.codec.Latency()
	if err != nil {
		p.latency.Store(-1)
		return
	}
	p.latency.Store(int64(samples))
}

// ID returns the processor identifier used in log fields.
func (p *Processor) ID() string { return p.id.String() }

// Params returns the desired parameter snapshot: every accepted setter
// value, whether or not the audio thread has applied it yet.
func (p *Processor) Params() codec.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.desired
}

// HostRate returns the host rate of the most recent New or Prepare.
func (p *Processor) HostRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hostRate
}

// Stats returns cumulative counters.
func (p *Processor) Stats() Stats {
	return p.totals.snapshot()
}

// Pending returns the number of queued commands.
func (p *Processor) Pending() int {
	return len(p.commands)
}

// Latency returns the active codec's latency estimate in engine samples, as
// of the last applied frame-size change or codec swap.
func (p *Processor) Latency() (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	samples := p.latency.Load()
	if samples < 0 {
		return 0, ErrLatencyUnavailable
	}
	return int(samples), nil
}

// Bypass reports whether input is passed straight to output.
func (p *Processor) Bypass() bool {
	return p.bypass.Load()
}

// SetBypass toggles passthrough. It takes effect at the next block and does
// not go through the command queue.
func (p *Processor) SetBypass(enable bool) {
	if p.bypass.Swap(enable) != enable {
		logrus.WithFields(logrus.Fields{
			"function":     "Processor.SetBypass",
			"processor_id": p.id.String(),
			"bypass":       enable,
		}).Info("Bypass changed")
	}
}

// Process renders one block. All four slices must have the same length;
// outputs may alias inputs. Queued commands are applied first.
//
// Without a codec, or with bypass on, input is copied through. While Close
// holds the processor the block is silent unless bypass is on.
func (p *Processor) Process(inL, inR, outL, outR []float64) error {
	n := len(inL)
	if len(inR) != n || len(outL) != n || len(outR) != n {
		return fmt.Errorf("%w: in %d/%d, out %d/%d", ErrBlockSize, len(inL), len(inR), len(outL), len(outR))
	}
	if !p.audio.TryLock() {
		if p.bypass.Load() {
			passThrough(inL, inR, outL, outR)
		} else {
			silence(outL, outR)
		}
		return nil
	}
	defer p.audio.Unlock()

	if p.closed.Load() {
		silence(outL, outR)
		return ErrClosed
	}

	var start time.Time
	if p.metrics != nil {
		start = p.clock.Now()
	}

	p.drain()

	if p.bypass.Load() || p.codec == nil {
		passThrough(inL, inR, outL, outR)
	} else {
		for i := 0; i < n; i++ {
			l, r := p.codec.ProcessSample(float32(inL[i]), float32(inR[i]))
			outL[i], outR[i] = float64(l), float64(r)
		}
		p.collect()
	}

	if p.metrics != nil {
		p.metrics.RecordBlock(p.ctx, p.clock.Since(start))
	}
	return nil
}

func passThrough(inL, inR, outL, outR []float64) {
	copy(outL, inL)
	copy(outR, inR)
}

func silence(outL, outR []float64) {
	clear(outL)
	clear(outR)
}

// collect folds the codec's counters since the last block into totals.
func (p *Processor) collect() {
	stats := p.codec.Stats()
	delta := stats.Sub(p.lastStats)
	p.lastStats = stats
	p.totals.add(delta)
	if p.metrics != nil {
		p.metrics.RecordStats(p.ctx, delta)
	}
}

// drain applies at most one queue's worth of commands.
func (p *Processor) drain() {
	for i := 0; i < cap(p.commands); i++ {
		select {
		case cmd := <-p.commands:
			p.apply(cmd)
		default:
			return
		}
	}
}

func (p *Processor) apply(cmd command) {
	if cmd.kind == cmdSwap {
		p.swap(cmd.codec)
		p.recordCommand(cmd, metrics.StatusApplied)
		return
	}

	err := cmd.apply(p.codec)
	if err != nil {
		p.recordCommand(cmd, metrics.StatusRejected)
		if logrus.IsLevelEnabled(logrus.WarnLevel) {
			logrus.WithFields(logrus.Fields{
				"function":     "Processor.apply",
				"processor_id": p.id.String(),
				"command":      cmd.kind.String(),
				"error":        err.Error(),
			}).Warn("Codec rejected command")
		}
		if cmd.kind != cmdReset {
			actual := p.codec.Params()
			p.mu.Lock()
			cmd.rollback(&p.desired, actual)
			p.mu.Unlock()
		}
		return
	}

	switch cmd.kind {
	case cmdFrameSize, cmdBitrate, cmdComplexity:
		p.refreshLatency()
	}
	p.recordCommand(cmd, metrics.StatusApplied)
}

// swap installs a codec built by Prepare and closes the previous one.
func (p *Processor) swap(next *codec.Codec) {
	prev := p.codec
	p.install(next)
	if err := prev.Close(); err != nil && logrus.IsLevelEnabled(logrus.WarnLevel) {
		logrus.WithFields(logrus.Fields{
			"function":     "Processor.swap",
			"processor_id": p.id.String(),
			"error":        err.Error(),
		}).Warn("Closing replaced codec failed")
	}
}

func (p *Processor) recordCommand(cmd command, status string) {
	switch status {
	case metrics.StatusApplied:
		p.totals.commandsApplied.Add(1)
	case metrics.StatusRejected:
		p.totals.commandsRejected.Add(1)
	}
	if p.metrics != nil {
		p.metrics.RecordCommand(p.ctx, cmd.kind.String(), status)
	}
}

// submit queues cmd and, once queued, records the new desired value.
func (p *Processor) submit(function string, cmd command, update func(*codec.Params)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	select {
	case p.commands <- cmd:
	default:
		logrus.WithFields(logrus.Fields{
			"function":     function,
			"processor_id": p.id.String(),
			"command":      cmd.kind.String(),
			"queue_size":   cap(p.commands),
		}).Warn("Command queue full")
		if p.metrics != nil {
			p.metrics.RecordCommand(p.ctx, cmd.kind.String(), metrics.StatusDropped)
		}
		return ErrQueueFull
	}

	if update != nil {
		update(&p.desired)
	}
	logrus.WithFields(logrus.Fields{
		"function":     function,
		"processor_id": p.id.String(),
		"command":      cmd.kind.String(),
		"value":        cmd.value,
	}).Debug("Command queued")
	return nil
}

func (p *Processor) reject(function string, err error) error {
	logrus.WithFields(logrus.Fields{
		"function":     function,
		"processor_id": p.id.String(),
		"error":        err.Error(),
	}).Error("Parameter validation failed")
	return err
}

// SetBitrate requests a bitrate in bits per second, [6000, 510000].
func (p *Processor) SetBitrate(bitrate int) error {
	if err := codec.ValidateBitrate(bitrate); err != nil {
		return p.reject("Processor.SetBitrate", err)
	}
	return p.submit("Processor.SetBitrate", command{kind: cmdBitrate, value: bitrate},
		func(d *codec.Params) { d.Bitrate = bitrate })
}

// SetComplexity requests an encoder complexity, [0, 10].
func (p *Processor) SetComplexity(complexity int) error {
	if err := codec.ValidateComplexity(complexity); err != nil {
		return p.reject("Processor.SetComplexity", err)
	}
	return p.submit("Processor.SetComplexity", command{kind: cmdComplexity, value: complexity},
		func(d *codec.Params) { d.Complexity = complexity })
}

// SetVBRMode requests 0 (CBR), 1 (VBR) or 2 (constrained VBR).
func (p *Processor) SetVBRMode(mode int) error {
	m := codec.VBRMode(mode)
	if err := codec.ValidateVBRMode(m); err != nil {
		return p.reject("Processor.SetVBRMode", err)
	}
	return p.submit("Processor.SetVBRMode", command{kind: cmdVBRMode, value: mode},
		func(d *codec.Params) { d.VBR = m })
}

// SetSignal requests the "voice" or "music" content hint.
func (p *Processor) SetSignal(name string) error {
	s, err := codec.ParseSignal(name)
	if err != nil {
		return p.reject("Processor.SetSignal", err)
	}
	return p.submit("Processor.SetSignal", command{kind: cmdSignal, value: int(s)},
		func(d *codec.Params) { d.Signal = s })
}

// SetPacketLoss requests an expected loss percentage, [0, 100].
func (p *Processor) SetPacketLoss(percentage int) error {
	if err := codec.ValidatePacketLoss(percentage); err != nil {
		return p.reject("Processor.SetPacketLoss", err)
	}
	return p.submit("Processor.SetPacketLoss", command{kind: cmdPacketLoss, value: percentage},
		func(d *codec.Params) { d.PacketLoss = percentage })
}

// SetDTX requests discontinuous transmission on or off.
func (p *Processor) SetDTX(enable bool) error {
	return p.submit("Processor.SetDTX", command{kind: cmdDTX, value: engine.BoolValue(enable)},
		func(d *codec.Params) { d.DTX = enable })
}

// SetFEC requests in-band forward error correction on or off.
func (p *Processor) SetFEC(enable bool) error {
	return p.submit("Processor.SetFEC", command{kind: cmdFEC, value: engine.BoolValue(enable)},
		func(d *codec.Params) { d.FEC = enable })
}

// SetFrameSize requests a frame of 2.5, 5, 10, 20, 40 or 60 ms. Applying it
// discards the partial input frame and the buffered output.
func (p *Processor) SetFrameSize(ms float64) error {
	d, err := codec.ParseFrameDuration(ms)
	if err != nil {
		return p.reject("Processor.SetFrameSize", err)
	}
	return p.submit("Processor.SetFrameSize", command{kind: cmdFrameSize, frame: d},
		func(dp *codec.Params) { dp.Frame = d })
}

// Reset requests an engine reset and a cleared input frame.
func (p *Processor) Reset() error {
	return p.submit("Processor.Reset", command{kind: cmdReset}, nil)
}

// Prepare builds a codec for a new host rate from the desired parameters and
// queues it; the audio thread swaps it in before its next block and closes
// the old codec. On failure the current codec keeps running.
func (p *Processor) Prepare(hostRate float64) error {
	logger := logrus.WithFields(logrus.Fields{
		"function":     "Processor.Prepare",
		"processor_id": p.id.String(),
		"host_rate":    hostRate,
	})
	if p.closed.Load() {
		return ErrClosed
	}

	p.mu.Lock()
	snapshot := p.desired
	p.mu.Unlock()

	c, err := newCodec(hostRate, p.open, snapshot)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Prepare failed, keeping current codec")
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		_ = c.Close()
		return ErrClosed
	}
	// Setters that ran while the codec was being built.
	if p.desired != snapshot {
		applyParams(c, p.desired)
	}

	select {
	case p.commands <- command{kind: cmdSwap, codec: c}:
	default:
		_ = c.Close()
		logger.WithField("queue_size", cap(p.commands)).Warn("Command queue full, prepared codec discarded")
		if p.metrics != nil {
			p.metrics.RecordCommand(p.ctx, cmdSwap.String(), metrics.StatusDropped)
		}
		return ErrQueueFull
	}

	p.desired = c.Params()
	p.hostRate = hostRate
	logger.WithFields(logrus.Fields{
		"codec_id":    c.ID(),
		"engine_rate": c.SampleRate(),
		"frame_size":  c.FrameSize(),
	}).Info("Prepared codec queued")
	return nil
}

// Close releases the codec and any codec still waiting in the queue. It is
// safe to call more than once.
func (p *Processor) Close() error {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return nil
	}
	p.closed.Store(true)
	p.mu.Unlock()

	p.audio.Lock()
	defer p.audio.Unlock()

	var errs []error
	for done := false; !done; {
		select {
		case cmd := <-p.commands:
			if cmd.codec != nil {
				errs = append(errs, cmd.codec.Close())
			}
		default:
			done = true
		}
	}
	errs = append(errs, p.codec.Close())
	p.codec = nil
	p.latency.Store(-1)

	if p.metrics != nil {
		p.metrics.ActiveProcessors.Add(p.ctx, -1)
	}

	stats := p.totals.snapshot()
	logrus.WithFields(logrus.Fields{
		"function":       "Processor.Close",
		"processor_id":   p.id.String(),
		"frames_encoded": stats.FramesEncoded,
		"frames_dropped": stats.FramesDropped,
	}).Info("Processor closed")
	return errors.Join(errs...)
}
