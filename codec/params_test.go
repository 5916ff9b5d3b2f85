package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameDuration(t *testing.T) {
	tests := []struct {
		ms      float64
		want    FrameDuration
		wantErr bool
	}{
		{ms: 2.5, want: Frame2_5ms},
		{ms: 5, want: Frame5ms},
		{ms: 10, want: Frame10ms},
		{ms: 20, want: Frame20ms},
		{ms: 40, want: Frame40ms},
		{ms: 60, want: Frame60ms},
		{ms: 0, wantErr: true},
		{ms: 15, wantErr: true},
		{ms: 2.4, wantErr: true},
		{ms: 120, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFrameDuration(tt.ms)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidParameter, "ms %v", tt.ms)
			continue
		}
		require.NoError(t, err, "ms %v", tt.ms)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ms, got.Milliseconds())
	}
}

func TestFrameDurationSamples(t *testing.T) {
	for _, rate := range SupportedRates() {
		for _, d := range FrameDurations() {
			want := int(math.Round(float64(rate) * d.Milliseconds() / 1000))
			assert.Equal(t, want, d.Samples(rate), "rate %d duration %s", rate, d)
		}
	}
	assert.Equal(t, 960, Frame20ms.Samples(48000))
	assert.Equal(t, 120, Frame2_5ms.Samples(48000))
	assert.Equal(t, 20, Frame2_5ms.Samples(8000))
	assert.Equal(t, 2880, Frame60ms.Samples(48000))
}

func TestParseSignal(t *testing.T) {
	s, err := ParseSignal("voice")
	require.NoError(t, err)
	assert.Equal(t, SignalVoice, s)
	assert.Equal(t, "voice", s.String())

	s, err = ParseSignal("music")
	require.NoError(t, err)
	assert.Equal(t, SignalMusic, s)

	_, err = ParseSignal("speech")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		valid bool
	}{
		{"bitrate_min", ValidateBitrate(6000), true},
		{"bitrate_max", ValidateBitrate(510000), true},
		{"bitrate_below", ValidateBitrate(5999), false},
		{"bitrate_above", ValidateBitrate(510001), false},
		{"complexity_0", ValidateComplexity(0), true},
		{"complexity_10", ValidateComplexity(10), true},
		{"complexity_11", ValidateComplexity(11), false},
		{"complexity_neg", ValidateComplexity(-1), false},
		{"vbr_cbr", ValidateVBRMode(CBR), true},
		{"vbr_cvbr", ValidateVBRMode(CVBR), true},
		{"vbr_3", ValidateVBRMode(3), false},
		{"signal_voice", ValidateSignal(SignalVoice), true},
		{"signal_zero", ValidateSignal(0), false},
		{"loss_0", ValidatePacketLoss(0), true},
		{"loss_100", ValidatePacketLoss(100), true},
		{"loss_101", ValidatePacketLoss(101), false},
		{"frame_20", ValidateFrameDuration(Frame20ms), true},
		{"frame_zero", ValidateFrameDuration(0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.valid {
				assert.NoError(t, tt.err)
			} else {
				assert.True(t, errors.Is(tt.err, ErrInvalidParameter))
			}
		})
	}
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Bitrate = 1
	p.Complexity = 42
	err := p.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), "bitrate")
	assert.Contains(t, err.Error(), "complexity")
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 6000, p.Bitrate)
	assert.Equal(t, 0, p.Complexity)
	assert.Equal(t, CBR, p.VBR)
	assert.Equal(t, SignalMusic, p.Signal)
	assert.Equal(t, 0, p.PacketLoss)
	assert.False(t, p.DTX)
	assert.False(t, p.FEC)
	assert.Equal(t, Frame20ms, p.Frame)
}

func TestVBRModeString(t *testing.T) {
	assert.Equal(t, "CBR", CBR.String())
	assert.Equal(t, "VBR", VBR.String())
	assert.Equal(t, "CVBR", CVBR.String())
	assert.Equal(t, "VBRMode(7)", VBRMode(7).String())
}

func TestParseVBRMode(t *testing.T) {
	for name, want := range map[string]VBRMode{"cbr": CBR, "VBR": VBR, "CVbr": CVBR} {
		got, err := ParseVBRMode(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := ParseVBRMode("abr")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
