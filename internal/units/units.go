// Package units provides shared conversions for rig telemetry: device elapsed
// counters are milliseconds, encoder positions are quadrature counts.
package units

import "math"

// DefaultCountsPerRevolution is the encoder resolution of the bench wheel
// after gearing (counts per full wheel revolution).
const DefaultCountsPerRevolution = 1440.0

// DefaultWheelDiameterMetres is the test wheel diameter.
const DefaultWheelDiameterMetres = 0.20

// MillisToSeconds converts a device elapsed-time counter to seconds.
// NaN passes through so missing values stay missing.
func MillisToSeconds(ms float64) float64 {
	return ms / 1000.0
}

// CountsToRevolutions converts encoder counts to wheel revolutions.
// A non-positive resolution yields NaN rather than a division blowup.
func CountsToRevolutions(counts, countsPerRev float64) float64 {
	if countsPerRev <= 0 {
		return math.NaN()
	}
	return counts / countsPerRev
}

// RevolutionsToMetres converts wheel revolutions to linear travel for the
// given wheel diameter.
func RevolutionsToMetres(revs, wheelDiameterM float64) float64 {
	return revs * math.Pi * wheelDiameterM
}
