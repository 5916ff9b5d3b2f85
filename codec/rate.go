package codec

// supportedRates lists the engine rates in ascending order.
var supportedRates = []int{8000, 12000, 16000, 24000, 48000}

// SupportedRates returns the engine sample rates in ascending order.
func SupportedRates() []int {
	rates := make([]int, len(supportedRates))
	copy(rates, supportedRates)
	return rates
}

// NegotiateRate maps a host sample rate to the smallest supported engine rate
// that is not below it. Anything above 24 kHz runs at 48 kHz.
//
// The mapping rounds up and never resamples: a 44.1 kHz host drives a 48 kHz
// engine and the host is expected to tolerate the mismatch.
func NegotiateRate(hostRate float64) int {
	for _, rate := range supportedRates {
		if hostRate <= float64(rate) {
			return rate
		}
	}
	return supportedRates[len(supportedRates)-1]
}
