// Package timebase converts sample indices of a capture into real time.
package timebase

import "fmt"

const (
	// BaseRateHz is the device sampling clock before the rate divider.
	BaseRateHz = 32_000_000

	// DefaultRateHz is used by frames that do not carry a rate selector.
	DefaultRateHz = BaseRateHz

	// MaxRateSelector is the largest divider exponent the device emits.
	MaxRateSelector = 15
)

// RateFromSelector returns BaseRateHz / 2^sel.
// The result is exact for every selector in [0, MaxRateSelector]. Larger
// selectors are clamped to MaxRateSelector; callers decoding untrusted input
// should reject them first.
func RateFromSelector(sel uint8) float64 {
	if sel > MaxRateSelector {
		sel = MaxRateSelector
	}
	return BaseRateHz / float64(uint64(1)<<sel)
}

// SampleTime returns the time, in seconds, of sample s at the given rate.
func SampleTime(rateHz float64, s int) float64 {
	return float64(s) / rateHz
}

// Axis returns the sample times of n consecutive samples starting at 0.
func Axis(rateHz float64, n int) []float64 {
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = SampleTime(rateHz, i)
	}
	return ret
}

// TriggerPosition wraps a cumulative trigger counter into a frame of size samples.
func TriggerPosition(trigger uint16, size int) int {
	if size <= 0 {
		return 0
	}
	return int(trigger) % size
}

// TriggerTime returns the in-frame trigger time in seconds.
func TriggerTime(rateHz float64, trigger uint16, size int) float64 {
	return SampleTime(rateHz, TriggerPosition(trigger, size))
}

func FormatRate(hz float64) string {
	return fmt.Sprintf("%0.3f MHz", hz/1e6)
}
