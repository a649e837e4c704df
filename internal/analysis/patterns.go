package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/slipbench/internal/sessionlog"
	"github.com/banshee-data/slipbench/internal/units"
)

// Patterns is the rolling-window anomaly and run-detection section of a
// report.
type Patterns struct {
	TotalAnomalies     int   `json:"total_anomalies"`
	AnomalyPercentage  Float `json:"anomaly_percentage"`
	MaxConsecutiveSlip int   `json:"max_consecutive_slip"` // samples
	SlipFrequency      Float `json:"slip_frequency"`       // events per second
}

// DetectPatterns runs rolling anomaly detection and consecutive-run analysis
// over the slip column.
func DetectPatterns(ds *sessionlog.Dataset, p Params) Patterns {
	slip := ds.SlipValues()

	means, stds := rollingStats(slip, p.Window)
	anomalies := 0
	for i, v := range slip {
		if isAnomaly(v, means[i], stds[i], p.SigmaMultiplier) {
			anomalies++
		}
	}

	pct := 0.0
	if len(slip) > 0 {
		pct = float64(anomalies) / float64(len(slip)) * 100
	}

	return Patterns{
		TotalAnomalies:     anomalies,
		AnomalyPercentage:  Float(pct),
		MaxConsecutiveSlip: maxConsecutiveRun(slip, p.HighSlipThreshold),
		SlipFrequency:      Float(slipFrequency(ds, p.HighSlipThreshold)),
	}
}

// rollingStats computes the trailing moving mean and sample standard
// deviation over a window of w samples ending at (and including) each index.
// Positions before the window fills, and windows containing a missing
// sentinel, are undefined (NaN).
func rollingStats(xs []float64, w int) (means, stds []float64) {
	means = make([]float64, len(xs))
	stds = make([]float64, len(xs))
	for i := range xs {
		means[i], stds[i] = math.NaN(), math.NaN()
		if i < w-1 {
			continue
		}
		window := xs[i-w+1 : i+1]
		if hasNaN(window) {
			continue
		}
		means[i] = stat.Mean(window, nil)
		stds[i] = stat.StdDev(window, nil)
	}
	return means, stds
}

// isAnomaly applies the K-sigma rule. Undefined rolling statistics never
// flag, and a zero deviation makes the comparison vacuously false (the
// sample itself is inside the window, so it equals the mean).
func isAnomaly(v, mean, std, k float64) bool {
	if math.IsNaN(v) || math.IsNaN(mean) || math.IsNaN(std) {
		return false
	}
	return math.Abs(v-mean) > k*std
}

// maxConsecutiveRun returns the length of the longest run of consecutive
// samples whose absolute slip exceeds the threshold. A missing or
// non-exceeding sample resets the run; ties keep the first-seen maximum.
func maxConsecutiveRun(xs []float64, threshold float64) int {
	longest, current := 0, 0
	for _, v := range xs {
		if math.Abs(v) > threshold { // false for NaN
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}

// slipFrequency is threshold-exceeding samples per second of device elapsed
// time. Zero or unknown elapsed time yields zero, never infinity.
func slipFrequency(ds *sessionlog.Dataset, threshold float64) float64 {
	count := 0
	maxElapsed := math.NaN()
	for _, s := range ds.Samples {
		if math.Abs(s.SlipPercentage) > threshold {
			count++
		}
		if !math.IsNaN(s.ElapsedMS) && (math.IsNaN(maxElapsed) || s.ElapsedMS > maxElapsed) {
			maxElapsed = s.ElapsedMS
		}
	}
	seconds := units.MillisToSeconds(maxElapsed)
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	return float64(count) / seconds
}

func hasNaN(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
