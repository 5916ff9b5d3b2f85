package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegotiateRate(t *testing.T) {
	tests := []struct {
		name     string
		hostRate float64
		want     int
	}{
		{name: "below_8k", hostRate: 4000, want: 8000},
		{name: "exact_8k", hostRate: 8000, want: 8000},
		{name: "11025", hostRate: 11025, want: 12000},
		{name: "exact_16k", hostRate: 16000, want: 16000},
		{name: "22050", hostRate: 22050, want: 24000},
		{name: "exact_24k", hostRate: 24000, want: 24000},
		{name: "just_above_24k", hostRate: 24000.5, want: 48000},
		{name: "44100", hostRate: 44100, want: 48000},
		{name: "96000", hostRate: 96000, want: 48000},
		{name: "192000", hostRate: 192000, want: 48000},
		{name: "zero", hostRate: 0, want: 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NegotiateRate(tt.hostRate))
		})
	}
}

func TestNegotiateRateAlwaysSupportedAndMonotonic(t *testing.T) {
	supported := map[int]bool{}
	for _, r := range SupportedRates() {
		supported[r] = true
	}

	prev := 0
	for host := 1.0; host <= 200000; host += 37.5 {
		got := NegotiateRate(host)
		assert.True(t, supported[got], "rate %v mapped to unsupported %d", host, got)
		assert.GreaterOrEqual(t, got, prev, "mapping decreased at %v", host)
		if host <= 48000 {
			assert.GreaterOrEqual(t, float64(got), host)
		}
		prev = got
	}
}

func TestNegotiateRateNaN(t *testing.T) {
	assert.Equal(t, 48000, NegotiateRate(math.NaN()))
}

func TestSupportedRatesIsCopy(t *testing.T) {
	rates := SupportedRates()
	rates[0] = 1
	assert.Equal(t, []int{8000, 12000, 16000, 24000, 48000}, SupportedRates())
}
