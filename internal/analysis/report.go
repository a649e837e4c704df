package analysis

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/slipbench/internal/sessionlog"
	"github.com/banshee-data/slipbench/internal/units"
)

// ErrNoDataset is returned when report building is attempted without a
// loaded dataset.
var ErrNoDataset = errors.New("no dataset loaded")

// Report is the immutable analysis result for one session. It serializes to
// the report document consumed by the plotting layer and archived in the
// registry database.
type Report struct {
	AnalysisDate    string     `json:"analysis_date"` // RFC 3339
	DataFile        string     `json:"data_file"`
	BasicStatistics BasicStats `json:"basic_statistics"`
	SlipAnalysis    SlipStats  `json:"slip_analysis"`
	Patterns        Patterns   `json:"patterns"`

	// params echo what the report was computed with, for Summary rendering.
	params Params
}

// BuildReport runs all analyses over the dataset and assembles the report.
// The three sections are pure functions of the immutable dataset, so they
// are computed concurrently.
func BuildReport(ds *sessionlog.Dataset, p Params) (*Report, error) {
	if ds == nil {
		return nil, ErrNoDataset
	}

	r := &Report{
		AnalysisDate: time.Now().Format(time.RFC3339),
		DataFile:     ds.Path,
		params:       p,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		r.BasicStatistics = ComputeBasicStats(ds)
	}()
	go func() {
		defer wg.Done()
		r.SlipAnalysis = ComputeSlipStats(ds, p.HighSlipThreshold)
	}()
	go func() {
		defer wg.Done()
		r.Patterns = DetectPatterns(ds, p)
	}()
	wg.Wait()

	return r, nil
}

// Summary renders the fixed-format console report.
func (r *Report) Summary() string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	basic := r.BasicStatistics
	slip := r.SlipAnalysis
	pat := r.Patterns

	p := r.params
	if p == (Params{}) {
		p = DefaultParams()
	}
	revs := units.CountsToRevolutions(float64(basic.EncoderRange.TotalRotation), p.CountsPerRevolution)
	travel := units.RevolutionsToMetres(revs, p.WheelDiameterMetres)

	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "WHEEL SLIP ANALYSIS REPORT\n")
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Test Duration: %.1f seconds\n", float64(basic.TestDuration))
	fmt.Fprintf(&b, "Total Samples: %d\n", basic.TotalSamples)
	fmt.Fprintf(&b, "Total Rotation: %.0f encoder counts (%.1f rev, %.2f m)\n",
		float64(basic.EncoderRange.TotalRotation), revs, travel)
	fmt.Fprintf(&b, "Direction Changes: %d\n", basic.DirectionChanges)
	fmt.Fprintf(&b, "\nSLIP STATISTICS:\n")
	fmt.Fprintf(&b, "  Mean Slip: %.2f%%\n", float64(basic.SlipStatistics.Mean))
	fmt.Fprintf(&b, "  Std Dev: %.2f%%\n", float64(basic.SlipStatistics.Std))
	fmt.Fprintf(&b, "  Max Slip: %.2f%%\n", float64(basic.SlipStatistics.Max))
	fmt.Fprintf(&b, "  Slip Events: %d (%.1f%% of time)\n", slip.SlipEventsCount, float64(slip.SlipPercentage))
	fmt.Fprintf(&b, "\nCORRELATIONS:\n")
	fmt.Fprintf(&b, "  Slip vs Load Cell: %.3f\n", float64(slip.Correlations.SlipVsLoad))
	fmt.Fprintf(&b, "  Slip vs Current: %.3f\n", float64(slip.Correlations.SlipVsCurrent))
	fmt.Fprintf(&b, "  Load vs Current: %.3f\n", float64(slip.Correlations.LoadVsCurrent))
	fmt.Fprintf(&b, "\nPATTERNS:\n")
	fmt.Fprintf(&b, "  Slip Anomalies: %d (%.1f%%)\n", pat.TotalAnomalies, float64(pat.AnomalyPercentage))
	fmt.Fprintf(&b, "  Max Consecutive Slip: %d samples\n", pat.MaxConsecutiveSlip)
	fmt.Fprintf(&b, "  Slip Frequency: %.3f events/second\n", float64(pat.SlipFrequency))
	fmt.Fprintf(&b, "%s\n", rule)

	return b.String()
}
