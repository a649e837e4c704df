package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slipbench/internal/sessionlog"
	"github.com/banshee-data/slipbench/internal/telemetry"
)

func dataset(samples ...telemetry.SensorSample) *sessionlog.Dataset {
	return &sessionlog.Dataset{Path: "test.csv", Samples: samples}
}

func TestComputeBasicStats(t *testing.T) {
	ds := dataset(
		telemetry.SensorSample{ElapsedMS: 0, EncoderCount: 100, SlipPercentage: 1},
		telemetry.SensorSample{ElapsedMS: 1000, EncoderCount: 90, SlipPercentage: 2, Annotation: telemetry.AnnotationDirectionChange},
		telemetry.SensorSample{ElapsedMS: 2000, EncoderCount: 140, SlipPercentage: 3},
		telemetry.SensorSample{ElapsedMS: 3000, EncoderCount: 120, SlipPercentage: 4, Annotation: telemetry.AnnotationSlipDetected},
	)

	got := ComputeBasicStats(ds)

	assert.Equal(t, 4, got.TotalSamples)
	assert.InDelta(t, 3.0, float64(got.TestDuration), 1e-12) // max elapsed, ms to s

	// range must be exact even though counts are non-monotonic
	assert.Equal(t, 90.0, float64(got.EncoderRange.Min))
	assert.Equal(t, 140.0, float64(got.EncoderRange.Max))
	assert.Equal(t, 50.0, float64(got.EncoderRange.TotalRotation))

	assert.InDelta(t, 2.5, float64(got.SlipStatistics.Mean), 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), float64(got.SlipStatistics.Std), 1e-12)
	assert.Equal(t, 1.0, float64(got.SlipStatistics.Min))
	assert.Equal(t, 4.0, float64(got.SlipStatistics.Max))
	assert.InDelta(t, 2.5, float64(got.SlipStatistics.Median), 1e-12)

	assert.Equal(t, 1, got.DirectionChanges)
	assert.Equal(t, 1, got.SlipEvents)
}

func TestComputeBasicStatsExcludesMissing(t *testing.T) {
	ds := dataset(
		telemetry.SensorSample{ElapsedMS: 1000, EncoderCount: math.NaN(), SlipPercentage: 2},
		telemetry.SensorSample{ElapsedMS: math.NaN(), EncoderCount: 50, SlipPercentage: math.NaN()},
		telemetry.SensorSample{ElapsedMS: 2000, EncoderCount: 80, SlipPercentage: 6},
	)

	got := ComputeBasicStats(ds)
	assert.Equal(t, 3, got.TotalSamples) // missing fields never drop the row
	assert.Equal(t, 30.0, float64(got.EncoderRange.TotalRotation))
	assert.InDelta(t, 4.0, float64(got.SlipStatistics.Mean), 1e-12)
}

func TestComputeBasicStatsEmpty(t *testing.T) {
	got := ComputeBasicStats(dataset())
	assert.Equal(t, 0, got.TotalSamples)
	assert.True(t, got.TestDuration.IsNaN())
	assert.True(t, got.SlipStatistics.Mean.IsNaN())
	assert.True(t, got.EncoderRange.TotalRotation.IsNaN())
}

func TestComputeSlipStatsCounts(t *testing.T) {
	ds := dataset(
		telemetry.SensorSample{SlipPercentage: 6, Direction: true, Load: 10, MotorCurrent: 1},
		telemetry.SensorSample{SlipPercentage: -7, Direction: false, Load: 12, MotorCurrent: 2},
		telemetry.SensorSample{SlipPercentage: 1, Direction: true, Load: 14, MotorCurrent: 3},
		telemetry.SensorSample{SlipPercentage: 2, Direction: true, Load: 16, MotorCurrent: 4},
	)

	got := ComputeSlipStats(ds, 5.0)
	assert.Equal(t, 2, got.SlipEventsCount) // sign carries no weight, |slip| rules
	assert.InDelta(t, 50.0, float64(got.SlipPercentage), 1e-12)
	assert.Equal(t, 5.0, float64(got.SlipThreshold))

	assert.Equal(t, 1, got.DirectionAnalysis.ForwardSlipEvents)
	assert.Equal(t, 1, got.DirectionAnalysis.ReverseSlipEvents)
	assert.InDelta(t, 3.0, float64(got.DirectionAnalysis.ForwardMeanSlip), 1e-12)
	assert.InDelta(t, -7.0, float64(got.DirectionAnalysis.ReverseMeanSlip), 1e-12)
}

func TestComputeSlipStatsPerfectCorrelation(t *testing.T) {
	ds := dataset(
		telemetry.SensorSample{SlipPercentage: 1, Load: 2, MotorCurrent: 10},
		telemetry.SensorSample{SlipPercentage: 2, Load: 4, MotorCurrent: 20},
		telemetry.SensorSample{SlipPercentage: 3, Load: 6, MotorCurrent: 30},
	)
	got := ComputeSlipStats(ds, 5.0)
	assert.InDelta(t, 1.0, float64(got.Correlations.SlipVsLoad), 1e-12)
	assert.InDelta(t, 1.0, float64(got.Correlations.SlipVsCurrent), 1e-12)
	assert.InDelta(t, 1.0, float64(got.Correlations.LoadVsCurrent), 1e-12)
}

func TestCorrelationUndefinedWhenColumnMissing(t *testing.T) {
	// one column entirely missing: pairwise-complete set is empty
	ds := dataset(
		telemetry.SensorSample{SlipPercentage: 1, Load: math.NaN(), MotorCurrent: 1},
		telemetry.SensorSample{SlipPercentage: 2, Load: math.NaN(), MotorCurrent: 2},
		telemetry.SensorSample{SlipPercentage: 3, Load: math.NaN(), MotorCurrent: 3},
	)
	got := ComputeSlipStats(ds, 5.0)
	assert.True(t, got.Correlations.SlipVsLoad.IsNaN())
	assert.True(t, got.Correlations.LoadVsCurrent.IsNaN())
	assert.False(t, got.Correlations.SlipVsCurrent.IsNaN())
}

func TestDirectionBreakdownOneSided(t *testing.T) {
	ds := dataset(
		telemetry.SensorSample{SlipPercentage: 1, Direction: true},
		telemetry.SensorSample{SlipPercentage: 2, Direction: true},
	)
	got := ComputeSlipStats(ds, 5.0)
	require.False(t, got.DirectionAnalysis.ForwardMeanSlip.IsNaN())
	// no reverse rows: undefined mean, not a panic
	assert.True(t, got.DirectionAnalysis.ReverseMeanSlip.IsNaN())
	assert.Equal(t, 0, got.DirectionAnalysis.ReverseSlipEvents)
}

func TestPearsonPairwiseComplete(t *testing.T) {
	// the NaN pair is dropped from both columns, not zero-filled
	x := []float64{1, 2, math.NaN(), 3}
	y := []float64{2, 4, 100, 6}
	assert.InDelta(t, 1.0, pearson(x, y), 1e-12)

	// fewer than two complete pairs is undefined
	assert.True(t, math.IsNaN(pearson([]float64{1, math.NaN()}, []float64{math.NaN(), 2})))
}
