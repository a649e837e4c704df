package sessionlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/banshee-data/slipbench/internal/monitoring"
	"github.com/banshee-data/slipbench/internal/telemetry"
)

// Dataset is an ordered, fully loaded session. Row order is time order and is
// preserved through loading; the analysis packages treat a Dataset as
// immutable and return derived values instead of mutating it.
type Dataset struct {
	Path    string
	Samples []telemetry.SensorSample

	// CommentRows and SkippedRows account for persisted rows that did not
	// become samples: recognised comment rows and malformed rows.
	CommentRows int
	SkippedRows int
}

// Load reads a persisted session back into memory. Individual malformed rows
// are counted and skipped; only a wholly unreadable source fails the load.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // rows are ragged: comments have 3 fields, data 10 or 11
	r.LazyQuotes = true

	ds := &Dataset{Path: path}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				ds.SkippedRows++
				monitoring.Logf("skipping unreadable row in %s: %v", path, err)
				continue
			}
			return nil, fmt.Errorf("failed to read session log %s: %w", path, err)
		}

		if len(rec) >= 2 && rec[1] == CommentTag {
			ds.CommentRows++
			continue
		}
		if len(rec) < 1+telemetry.MinDataFields {
			ds.SkippedRows++
			monitoring.Logf("skipping short row in %s: %d fields", path, len(rec))
			continue
		}

		s := telemetry.SensorSample{
			ReceiptTime:      telemetry.CoerceFloat(rec[0]),
			SourceTime:       telemetry.CoerceFloat(rec[1]),
			ElapsedMS:        telemetry.CoerceFloat(rec[2]),
			EncoderCount:     telemetry.CoerceFloat(rec[3]),
			ExpectedRotation: telemetry.CoerceFloat(rec[4]),
			SlipPercentage:   telemetry.CoerceFloat(rec[5]),
			Direction:        telemetry.CoerceDirection(rec[6]),
			Load:             telemetry.CoerceFloat(rec[7]),
			CurrentSensor:    telemetry.CoerceFloat(rec[8]),
			MotorCurrent:     telemetry.CoerceFloat(rec[9]),
		}
		if len(rec) > 10 {
			s.Annotation = strings.TrimSpace(strings.Join(rec[10:], ","))
		}
		ds.Samples = append(ds.Samples, s)
	}

	return ds, nil
}

// SlipValues returns the slip percentage column in row order, NaN sentinels
// included. Callers filter as their statistic requires.
func (d *Dataset) SlipValues() []float64 {
	out := make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.SlipPercentage
	}
	return out
}
