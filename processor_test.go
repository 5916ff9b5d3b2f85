package opusloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/opusloop/codec"
	"github.com/opd-ai/opusloop/engine"
	"github.com/opd-ai/opusloop/factory"
	"github.com/opd-ai/opusloop/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// loopbacks opens a fresh Loopback per call and keeps them for inspection.
type loopbacks struct {
	mu          sync.Mutex
	all         []*engine.Loopback
	reject      map[engine.Control]bool
	rejectValue func(engine.Control, int) bool
	failing     bool
}

func (l *loopbacks) open(sampleRate, channels int) (engine.Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing {
		return nil, errors.New("engine unavailable")
	}
	lb := engine.NewLoopback()
	for ctl, v := range l.reject {
		lb.Reject[ctl] = v
	}
	lb.RejectValue = l.rejectValue
	l.all = append(l.all, lb)
	return lb.Open(sampleRate, channels)
}

func (l *loopbacks) last() *engine.Loopback {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.all[len(l.all)-1]
}

func (l *loopbacks) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.all)
}

func newTestProcessor(t *testing.T, hostRate float64, mutate func(*Options)) (*Processor, *loopbacks) {
	t.Helper()
	lbs := &loopbacks{}
	opts := NewOptions()
	opts.Engine = lbs.open
	opts.QueueSize = 16
	if mutate != nil {
		mutate(opts)
	}
	p, err := New(hostRate, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, lbs
}

// block processes n samples of constant input and returns the left output.
func block(t *testing.T, p *Processor, n int, value float64) []float64 {
	t.Helper()
	inL := make([]float64, n)
	inR := make([]float64, n)
	for i := range inL {
		inL[i] = value
		inR[i] = -value
	}
	outL := make([]float64, n)
	outR := make([]float64, n)
	require.NoError(t, p.Process(inL, inR, outL, outR))
	return outL
}

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	assert.Equal(t, 32000, opts.Params.Bitrate)
	assert.Equal(t, 5, opts.Params.Complexity)
	assert.Equal(t, codec.CBR, opts.Params.VBR)
	assert.Equal(t, codec.SignalMusic, opts.Params.Signal)
	assert.Equal(t, codec.Frame20ms, opts.Params.Frame)
	assert.Nil(t, opts.Engine)
	assert.Zero(t, opts.QueueSize)
	assert.False(t, opts.Bypass)
	assert.NoError(t, opts.Params.Validate())
}

func TestNewAppliesDesiredParams(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, func(o *Options) {
		o.Params.VBR = codec.CVBR
		o.Params.Frame = codec.Frame10ms
	})
	lb := lbs.last()

	assert.Equal(t, 48000, lb.SampleRate)
	assert.Equal(t, 32000, lb.Controls[engine.ControlBitrate])
	assert.Equal(t, 5, lb.Controls[engine.ControlComplexity])
	assert.Equal(t, 1, lb.Controls[engine.ControlVBR])
	assert.Equal(t, 1, lb.Controls[engine.ControlVBRConstraint])

	params := p.Params()
	assert.Equal(t, 32000, params.Bitrate)
	assert.Equal(t, codec.Frame10ms, params.Frame)
	assert.Equal(t, 48000.0, p.HostRate())
	assert.NotEmpty(t, p.ID())

	latency, err := p.Latency()
	require.NoError(t, err)
	assert.Equal(t, 312+480+312, latency)
}

func TestNewFailures(t *testing.T) {
	opts := NewOptions()
	opts.Params.Bitrate = 1
	_, err := New(48000, opts)
	assert.ErrorIs(t, err, codec.ErrInvalidParameter)

	lbs := &loopbacks{failing: true}
	opts = NewOptions()
	opts.Engine = lbs.open
	_, err = New(48000, opts)
	assert.ErrorIs(t, err, ErrCodecInitialization)
	assert.ErrorIs(t, err, codec.ErrEngineCreate)
}

func TestNewUsesFactoryEnvironment(t *testing.T) {
	t.Setenv(factory.EnvEngine, factory.EngineLoopback)
	t.Setenv(factory.EnvQueueSize, "3")

	p, err := New(16000, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, cap(p.commands))
	out := block(t, p, 3*320, 0.5)
	assert.Equal(t, 0.5, out[len(out)-1])
}

func TestNewRejectedDesiredParamKeepsCodecValue(t *testing.T) {
	lbs := &loopbacks{rejectValue: func(ctl engine.Control, value int) bool {
		return ctl == engine.ControlComplexity && value != 0
	}}
	opts := NewOptions()
	opts.Engine = lbs.open
	p, err := New(48000, opts)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 0, p.Params().Complexity)
	assert.Equal(t, 0, lbs.last().Controls[engine.ControlComplexity])
	assert.Equal(t, 32000, p.Params().Bitrate)
}

func TestNewFailsWhenEngineRejectsDefaults(t *testing.T) {
	lbs := &loopbacks{reject: map[engine.Control]bool{engine.ControlComplexity: true}}
	opts := NewOptions()
	opts.Engine = lbs.open
	p, err := New(48000, opts)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrCodecInitialization)
	assert.ErrorIs(t, err, codec.ErrEngineCreate)
	assert.True(t, lbs.last().Closed)
}

func TestProcessDelaysByTwoFrames(t *testing.T) {
	p, _ := newTestProcessor(t, 16000, nil)
	const (
		blockSize = 64
		blocks    = 40
		delay     = 2*320 - 1
	)

	var out []float64
	for b := 0; b < blocks; b++ {
		inL := make([]float64, blockSize)
		inR := make([]float64, blockSize)
		for i := range inL {
			v := float64(b*blockSize+i+1) / 4096
			inL[i], inR[i] = v, -v
		}
		outL := make([]float64, blockSize)
		outR := make([]float64, blockSize)
		require.NoError(t, p.Process(inL, inR, outL, outR))
		out = append(out, outL...)
	}

	for i := 0; i < delay; i++ {
		require.Zero(t, out[i], "sample %d", i)
	}
	for i := delay; i < len(out); i++ {
		require.Equal(t, float64(i-delay+1)/4096, out[i], "sample %d", i)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(delay), stats.UnderrunSamples)
	assert.Equal(t, uint64(len(out)-delay), stats.SamplesOut)
	assert.Equal(t, uint64(len(out)/320), stats.FramesEncoded)
	assert.Zero(t, stats.FramesDropped)
}

func TestProcessInPlace(t *testing.T) {
	p, _ := newTestProcessor(t, 8000, nil)
	bufL := make([]float64, 3*160)
	bufR := make([]float64, 3*160)
	for i := range bufL {
		bufL[i] = 0.25
		bufR[i] = 0.75
	}
	require.NoError(t, p.Process(bufL, bufR, bufL, bufR))
	assert.Zero(t, bufL[0])
	assert.Equal(t, 0.25, bufL[len(bufL)-1])
	assert.Equal(t, 0.75, bufR[len(bufR)-1])
}

func TestProcessBlockSize(t *testing.T) {
	p, _ := newTestProcessor(t, 48000, nil)
	err := p.Process(make([]float64, 4), make([]float64, 4), make([]float64, 3), make([]float64, 4))
	assert.ErrorIs(t, err, ErrBlockSize)
}

func TestBypass(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, func(o *Options) { o.Bypass = true })
	assert.True(t, p.Bypass())

	out := block(t, p, 128, 0.3)
	for _, v := range out {
		require.Equal(t, 0.3, v)
	}
	assert.Zero(t, lbs.last().Encodes)

	p.SetBypass(false)
	assert.False(t, p.Bypass())
	out = block(t, p, 128, 0.3)
	assert.Zero(t, out[0])
}

func TestBypassWhileLocked(t *testing.T) {
	p, _ := newTestProcessor(t, 48000, nil)
	in := []float64{0.1, 0.2, 0.3}

	p.audio.Lock()
	defer p.audio.Unlock()

	outL := []float64{9, 9, 9}
	outR := []float64{9, 9, 9}
	require.NoError(t, p.Process(in, in, outL, outR))
	assert.Equal(t, []float64{0, 0, 0}, outL)
	assert.Equal(t, []float64{0, 0, 0}, outR)

	p.SetBypass(true)
	require.NoError(t, p.Process(in, in, outL, outR))
	assert.Equal(t, in, outL)
	assert.Equal(t, in, outR)
}

func TestNoCodecPassesThrough(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, nil)
	c := p.codec
	p.codec = nil
	defer func() { p.codec = c }()

	out := block(t, p, 64, 0.4)
	for _, v := range out {
		require.Equal(t, 0.4, v)
	}
	assert.Zero(t, lbs.last().Encodes)
}

func TestSettersApplyAtNextBlock(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, nil)
	lb := lbs.last()

	require.NoError(t, p.SetBitrate(64000))
	require.NoError(t, p.SetComplexity(9))
	require.NoError(t, p.SetVBRMode(1))
	require.NoError(t, p.SetSignal("voice"))
	require.NoError(t, p.SetPacketLoss(20))
	require.NoError(t, p.SetDTX(true))
	require.NoError(t, p.SetFEC(true))

	params := p.Params()
	assert.Equal(t, 64000, params.Bitrate)
	assert.Equal(t, 9, params.Complexity)
	assert.Equal(t, codec.VBR, params.VBR)
	assert.Equal(t, codec.SignalVoice, params.Signal)
	assert.Equal(t, 20, params.PacketLoss)
	assert.True(t, params.DTX)
	assert.True(t, params.FEC)

	assert.Equal(t, 32000, lb.Controls[engine.ControlBitrate], "applied before the next block")
	assert.Equal(t, 7, p.Pending())

	block(t, p, 16, 0)
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, 64000, lb.Controls[engine.ControlBitrate])
	assert.Equal(t, 9, lb.Controls[engine.ControlComplexity])
	assert.Equal(t, 1, lb.Controls[engine.ControlVBR])
	assert.Equal(t, 0, lb.Controls[engine.ControlVBRConstraint])
	assert.Equal(t, int(engine.SignalVoice), lb.Controls[engine.ControlSignal])
	assert.Equal(t, 20, lb.Controls[engine.ControlPacketLossPerc])
	assert.Equal(t, 1, lb.Controls[engine.ControlDTX])
	assert.Equal(t, 1, lb.Controls[engine.ControlInbandFEC])
	assert.Equal(t, uint64(7), p.Stats().CommandsApplied)
}

func TestCommandsApplyInOrder(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, nil)

	for _, bitrate := range []int{7000, 8000, 9000} {
		require.NoError(t, p.SetBitrate(bitrate))
	}
	block(t, p, 1, 0)
	assert.Equal(t, 9000, lbs.last().Controls[engine.ControlBitrate])
}

func TestQueueFull(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, func(o *Options) { o.QueueSize = 2 })

	require.NoError(t, p.SetBitrate(7000))
	require.NoError(t, p.SetBitrate(8000))
	assert.ErrorIs(t, p.SetBitrate(9000), ErrQueueFull)
	assert.ErrorIs(t, p.Reset(), ErrQueueFull)
	assert.Equal(t, 8000, p.Params().Bitrate)

	block(t, p, 1, 0)
	assert.Equal(t, 8000, lbs.last().Controls[engine.ControlBitrate])
	assert.Zero(t, lbs.last().Resets)

	require.NoError(t, p.SetBitrate(9000))
}

func TestInvalidValuesAreNotQueued(t *testing.T) {
	p, _ := newTestProcessor(t, 48000, nil)
	before := p.Params()

	assert.ErrorIs(t, p.SetBitrate(5999), codec.ErrInvalidParameter)
	assert.ErrorIs(t, p.SetBitrate(510001), codec.ErrInvalidParameter)
	assert.ErrorIs(t, p.SetComplexity(11), codec.ErrInvalidParameter)
	assert.ErrorIs(t, p.SetVBRMode(3), codec.ErrInvalidParameter)
	assert.ErrorIs(t, p.SetSignal("speech"), codec.ErrInvalidParameter)
	assert.ErrorIs(t, p.SetPacketLoss(-1), codec.ErrInvalidParameter)
	assert.ErrorIs(t, p.SetFrameSize(15), codec.ErrInvalidParameter)

	assert.Equal(t, before, p.Params())
	assert.Zero(t, p.Pending())
}

func TestRejectedCommandRollsBackDesired(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, nil)
	lbs.last().Reject[engine.ControlBitrate] = true

	require.NoError(t, p.SetBitrate(64000))
	assert.Equal(t, 64000, p.Params().Bitrate)

	block(t, p, 1, 0)
	assert.Equal(t, 32000, p.Params().Bitrate)
	assert.Equal(t, uint64(1), p.Stats().CommandsRejected)
}

func TestRollbackKeepsNewerRequest(t *testing.T) {
	var desired codec.Params
	desired.Bitrate = 9000
	actual := codec.DefaultParams()

	command{kind: cmdBitrate, value: 8000}.rollback(&desired, actual)
	assert.Equal(t, 9000, desired.Bitrate)

	command{kind: cmdBitrate, value: 9000}.rollback(&desired, actual)
	assert.Equal(t, actual.Bitrate, desired.Bitrate)
}

func TestSetFrameSize(t *testing.T) {
	p, _ := newTestProcessor(t, 48000, nil)

	latency, err := p.Latency()
	require.NoError(t, err)
	assert.Equal(t, 312+960+312, latency)

	require.NoError(t, p.SetFrameSize(2.5))
	assert.Equal(t, codec.Frame2_5ms, p.Params().Frame)

	block(t, p, 1, 0)
	latency, err = p.Latency()
	require.NoError(t, err)
	assert.Equal(t, 312+120+312, latency)

	out := block(t, p, 4*120, 0.5)
	assert.Equal(t, 0.5, out[len(out)-1])
}

func TestLatencyFollowsEncoderSettings(t *testing.T) {
	tests := []struct {
		name string
		set  func(p *Processor) error
	}{
		{"bitrate", func(p *Processor) error { return p.SetBitrate(64000) }},
		{"complexity", func(p *Processor) error { return p.SetComplexity(9) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, lbs := newTestProcessor(t, 48000, nil)
			latency, err := p.Latency()
			require.NoError(t, err)
			assert.Equal(t, 312+960+312, latency)

			lbs.last().LookaheadSamples = 500
			require.NoError(t, tt.set(p))
			block(t, p, 1, 0)

			latency, err = p.Latency()
			require.NoError(t, err)
			assert.Equal(t, 500+960+312, latency)
		})
	}
}

func TestReset(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, nil)
	block(t, p, 100, 0.5)

	require.NoError(t, p.Reset())
	assert.Zero(t, lbs.last().Resets)
	block(t, p, 1, 0)
	assert.Equal(t, 1, lbs.last().Resets)
	assert.Equal(t, 32000, p.Params().Bitrate)
}

func TestPrepareSwapsCodec(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, nil)
	require.NoError(t, p.SetBitrate(24000))
	require.NoError(t, p.SetFrameSize(10))
	block(t, p, 1, 0)
	first := lbs.last()

	require.NoError(t, p.Prepare(16000))
	require.Equal(t, 2, lbs.count())
	second := lbs.last()
	assert.Equal(t, 16000, second.SampleRate)
	assert.Equal(t, 24000, second.Controls[engine.ControlBitrate])
	assert.Equal(t, 5, second.Controls[engine.ControlComplexity])
	assert.False(t, first.Closed, "old codec runs until the next block")
	assert.Equal(t, 16000.0, p.HostRate())

	block(t, p, 1, 0)
	assert.True(t, first.Closed)
	assert.False(t, second.Closed)

	latency, err := p.Latency()
	require.NoError(t, err)
	assert.Equal(t, 104+160+104, latency)

	out := block(t, p, 3*160, 0.5)
	assert.Equal(t, 0.5, out[len(out)-1])
	assert.Equal(t, 3, second.Encodes)
}

func TestPrepareFailureKeepsCurrentCodec(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, nil)
	lbs.mu.Lock()
	lbs.failing = true
	lbs.mu.Unlock()

	err := p.Prepare(16000)
	assert.ErrorIs(t, err, ErrCodecInitialization)
	assert.Equal(t, 48000.0, p.HostRate())

	out := block(t, p, 3*960, 0.5)
	assert.Equal(t, 0.5, out[len(out)-1])
}

func TestPrepareQueueFull(t *testing.T) {
	p, lbs := newTestProcessor(t, 48000, func(o *Options) { o.QueueSize = 1 })
	require.NoError(t, p.SetBitrate(7000))

	assert.ErrorIs(t, p.Prepare(16000), ErrQueueFull)
	assert.True(t, lbs.last().Closed)
	assert.Equal(t, 48000.0, p.HostRate())
}

func TestCloseReleasesQueuedCodecs(t *testing.T) {
	lbs := &loopbacks{}
	opts := NewOptions()
	opts.Engine = lbs.open
	opts.QueueSize = 4
	p, err := New(48000, opts)
	require.NoError(t, err)

	require.NoError(t, p.Prepare(24000))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	for i, lb := range lbs.all {
		assert.True(t, lb.Closed, "engine %d", i)
		assert.Equal(t, 1, lb.Closes, "engine %d", i)
	}

	outL := []float64{1, 1}
	outR := []float64{1, 1}
	err = p.Process([]float64{1, 1}, []float64{1, 1}, outL, outR)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []float64{0, 0}, outL)
	assert.Equal(t, []float64{0, 0}, outR)

	assert.ErrorIs(t, p.SetBitrate(64000), ErrClosed)
	assert.ErrorIs(t, p.Reset(), ErrClosed)
	assert.ErrorIs(t, p.Prepare(48000), ErrClosed)
	_, err = p.Latency()
	assert.ErrorIs(t, err, ErrClosed)
}

type stepClock struct{ step time.Duration }

func (stepClock) Now() time.Time                  { return time.Unix(0, 0) }
func (c stepClock) Since(time.Time) time.Duration { return c.step }

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := metrics.NewMetrics(mp)
	require.NoError(t, err)

	lbs := &loopbacks{}
	opts := NewOptions()
	opts.Engine = lbs.open
	opts.QueueSize = 4
	opts.Metrics = m
	opts.TimeProvider = stepClock{step: time.Millisecond}
	p, err := New(8000, opts)
	require.NoError(t, err)

	require.NoError(t, p.SetBitrate(12000))
	for i := 0; i < 4; i++ {
		block(t, p, 160, 0.5)
	}
	require.NoError(t, p.Close())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	var blocks uint64
	var blockSeconds float64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch data := met.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[met.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					blocks += dp.Count
					blockSeconds += dp.Sum
				}
			}
		}
	}

	assert.Equal(t, int64(4), sums["opusloop.frames.encoded"])
	assert.Equal(t, int64(319), sums["opusloop.samples.underrun"])
	assert.Equal(t, int64(4*160-319), sums["opusloop.samples.out"])
	assert.Equal(t, int64(16), sums["opusloop.packet.bytes"])
	assert.Equal(t, int64(1), sums["opusloop.commands"])
	assert.Equal(t, int64(0), sums["opusloop.active_processors"])
	assert.Equal(t, uint64(4), blocks)
	assert.InDelta(t, 0.004, blockSeconds, 1e-9)
}

func TestConcurrentControlAndAudio(t *testing.T) {
	p, _ := newTestProcessor(t, 48000, func(o *Options) { o.QueueSize = 8 })

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			err := p.SetBitrate(6000 + i%1000)
			if err != nil && !errors.Is(err, ErrQueueFull) {
				t.Errorf("SetBitrate: %v", err)
				return
			}
			_ = p.Params()
			p.SetBypass(i%50 == 0)
		}
	}()

	for i := 0; i < 200; i++ {
		block(t, p, 64, 0.1)
	}
	close(done)
	wg.Wait()

	block(t, p, 1, 0)
	assert.Zero(t, p.Pending())
}

func TestCommandKindString(t *testing.T) {
	assert.Equal(t, "bitrate", cmdBitrate.String())
	assert.Equal(t, "frame_size", cmdFrameSize.String())
	assert.Equal(t, "swap", cmdSwap.String())
	assert.Equal(t, "command(99)", commandKind(99).String())
}
