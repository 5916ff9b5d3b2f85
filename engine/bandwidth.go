package engine

import (
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// BandwidthForRate returns the Opus audio bandwidth carried at an engine rate.
//
// Unknown rates map to fullband, the bandwidth of the highest supported rate.
func BandwidthForRate(sampleRate int) opus.Bandwidth {
	switch sampleRate {
	case 8000:
		return opus.BandwidthNarrowband
	case 12000:
		return opus.BandwidthMediumband
	case 16000:
		return opus.BandwidthWideband
	case 24000:
		return opus.BandwidthSuperwideband
	case 48000:
		return opus.BandwidthFullband
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "BandwidthForRate",
			"sample_rate": sampleRate,
		}).Warn("Unsupported engine rate, defaulting to fullband")
		return opus.BandwidthFullband
	}
}
