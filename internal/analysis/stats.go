// Package analysis computes slip statistics, correlations, and anomaly
// patterns over a loaded session dataset. All operations are pure functions
// of the dataset: nothing here mutates the samples, so the individual
// computations can run concurrently over the same dataset.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/slipbench/internal/sessionlog"
	"github.com/banshee-data/slipbench/internal/telemetry"
	"github.com/banshee-data/slipbench/internal/units"
)

// EncoderRange summarizes the encoder position column.
type EncoderRange struct {
	Min           Float `json:"min"`
	Max           Float `json:"max"`
	TotalRotation Float `json:"total_rotation"` // max - min, in counts
}

// SlipSummary holds descriptive statistics of the slip percentage column.
type SlipSummary struct {
	Mean   Float `json:"mean"`
	Std    Float `json:"std"`
	Min    Float `json:"min"`
	Max    Float `json:"max"`
	Median Float `json:"median"`
}

// BasicStats is the descriptive-statistics section of a report.
type BasicStats struct {
	TotalSamples     int          `json:"total_samples"`
	TestDuration     Float        `json:"test_duration"` // seconds, from the device elapsed counter
	EncoderRange     EncoderRange `json:"encoder_range"`
	SlipStatistics   SlipSummary  `json:"slip_statistics"`
	DirectionChanges int          `json:"direction_changes"`
	SlipEvents       int          `json:"slip_events"`
}

// Correlations holds the fixed pairwise Pearson set. Undefined entries
// (fewer than two pairwise-complete points) are NaN, never an error.
type Correlations struct {
	SlipVsLoad    Float `json:"slip_vs_load"`
	SlipVsCurrent Float `json:"slip_vs_current"`
	LoadVsCurrent Float `json:"load_vs_current"`
}

// DirectionAnalysis breaks slip behaviour down by commanded direction.
type DirectionAnalysis struct {
	ForwardMeanSlip   Float `json:"forward_mean_slip"`
	ReverseMeanSlip   Float `json:"reverse_mean_slip"`
	ForwardSlipEvents int   `json:"forward_slip_events"`
	ReverseSlipEvents int   `json:"reverse_slip_events"`
}

// SlipStats is the slip-analysis section of a report.
type SlipStats struct {
	SlipEventsCount   int               `json:"slip_events_count"`
	SlipPercentage    Float             `json:"slip_percentage"` // percent of all samples
	Correlations      Correlations      `json:"correlations"`
	DirectionAnalysis DirectionAnalysis `json:"direction_analysis"`
	SlipThreshold     Float             `json:"slip_threshold"`
}

// ComputeBasicStats computes descriptive statistics over the dataset.
// Missing sentinels are excluded from every aggregate.
func ComputeBasicStats(ds *sessionlog.Dataset) BasicStats {
	var elapsed, encoder, slip []float64
	directionChanges, slipEvents := 0, 0
	for _, s := range ds.Samples {
		elapsed = append(elapsed, s.ElapsedMS)
		encoder = append(encoder, s.EncoderCount)
		slip = append(slip, s.SlipPercentage)
		switch s.Annotation {
		case telemetry.AnnotationDirectionChange:
			directionChanges++
		case telemetry.AnnotationSlipDetected:
			slipEvents++
		}
	}

	encMin, encMax := validMinMax(encoder)
	validSlip := validValues(slip)
	_, elapsedMax := validMinMax(elapsed)

	return BasicStats{
		TotalSamples: len(ds.Samples),
		TestDuration: Float(units.MillisToSeconds(elapsedMax)),
		EncoderRange: EncoderRange{
			Min:           Float(encMin),
			Max:           Float(encMax),
			TotalRotation: Float(encMax - encMin),
		},
		SlipStatistics: SlipSummary{
			Mean:   Float(meanOf(validSlip)),
			Std:    Float(stdOf(validSlip)),
			Min:    minFloat(validSlip),
			Max:    maxFloat(validSlip),
			Median: Float(medianOf(validSlip)),
		},
		DirectionChanges: directionChanges,
		SlipEvents:       slipEvents,
	}
}

// ComputeSlipStats computes high-slip event counts, the fixed correlation
// set, and the directional breakdown. threshold is the absolute slip
// percentage above which a sample counts as a slip event.
func ComputeSlipStats(ds *sessionlog.Dataset, threshold float64) SlipStats {
	var slip, load, motor []float64
	events := 0
	var fwdSlip, revSlip []float64
	fwdEvents, revEvents := 0, 0

	for _, s := range ds.Samples {
		slip = append(slip, s.SlipPercentage)
		load = append(load, s.Load)
		motor = append(motor, s.MotorCurrent)

		high := math.Abs(s.SlipPercentage) > threshold // false for NaN
		if high {
			events++
		}
		if s.Direction {
			fwdSlip = append(fwdSlip, s.SlipPercentage)
			if high {
				fwdEvents++
			}
		} else {
			revSlip = append(revSlip, s.SlipPercentage)
			if high {
				revEvents++
			}
		}
	}

	pct := 0.0
	if n := len(ds.Samples); n > 0 {
		pct = float64(events) / float64(n) * 100
	}

	return SlipStats{
		SlipEventsCount: events,
		SlipPercentage:  Float(pct),
		Correlations: Correlations{
			SlipVsLoad:    Float(pearson(slip, load)),
			SlipVsCurrent: Float(pearson(slip, motor)),
			LoadVsCurrent: Float(pearson(load, motor)),
		},
		DirectionAnalysis: DirectionAnalysis{
			ForwardMeanSlip:   Float(meanOf(validValues(fwdSlip))),
			ReverseMeanSlip:   Float(meanOf(validValues(revSlip))),
			ForwardSlipEvents: fwdEvents,
			ReverseSlipEvents: revEvents,
		},
		SlipThreshold: Float(threshold),
	}
}

// validValues filters missing sentinels out of a column.
func validValues(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// validMinMax returns the min and max of the non-missing values, or NaN for
// an empty or all-missing column.
func validMinMax(xs []float64) (min, max float64) {
	min, max = math.NaN(), math.NaN()
	for _, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(min) || v < min {
			min = v
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	return min, max
}

func minFloat(valid []float64) Float {
	m, _ := validMinMax(valid)
	return Float(m)
}

func maxFloat(valid []float64) Float {
	_, m := validMinMax(valid)
	return Float(m)
}

// meanOf returns the mean of an already-filtered column, or NaN when empty.
func meanOf(valid []float64) float64 {
	if len(valid) == 0 {
		return math.NaN()
	}
	return stat.Mean(valid, nil)
}

// stdOf returns the sample standard deviation (n-1 divisor), NaN when fewer
// than two points, matching the descriptive-statistics convention of the
// rest of the report.
func stdOf(valid []float64) float64 {
	if len(valid) < 2 {
		return math.NaN()
	}
	return stat.StdDev(valid, nil)
}

// medianOf returns the median with even-length interpolation.
func medianOf(valid []float64) float64 {
	n := len(valid)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, valid)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// pearson computes the Pearson correlation over the pairwise-complete subset
// of two equal-length columns. Fewer than two complete pairs yields NaN.
func pearson(xs, ys []float64) float64 {
	px := make([]float64, 0, len(xs))
	py := make([]float64, 0, len(ys))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		px = append(px, xs[i])
		py = append(py, ys[i])
	}
	if len(px) < 2 {
		return math.NaN()
	}
	return stat.Correlation(px, py, nil)
}
