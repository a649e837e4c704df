// Package sessionlog persists one ingestion session per CSV file and loads
// persisted sessions back into memory for analysis. The on-disk row layout is
//
//	receipt_time, source_time, elapsed_ms, encoder_count, expected_rotation,
//	slip_percentage, direction(0/1), load, current_sensor, motor_current, annotation
//
// with comment rows written as exactly (receipt_time, "COMMENT", raw_text).
// The writer is the only component that assigns receipt_time.
package sessionlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/banshee-data/slipbench/internal/monitoring"
	"github.com/banshee-data/slipbench/internal/telemetry"
)

// CommentTag marks a persisted comment row in the second column. The loader
// checks this column, not the field count, since data rows may also carry a
// trailing annotation.
const CommentTag = "COMMENT"

// Writer appends one session's records to a CSV file. Every accepted record
// is flushed and fsynced before Append returns: a bench run cannot be
// replayed, so durability wins over throughput. Writer is single-writer; the
// row counters may be read concurrently via Counts.
type Writer struct {
	path    string
	f       *os.File
	csv     *csv.Writer
	opened  time.Time
	samples atomic.Int64
	comment atomic.Int64
}

// NewWriter opens a fresh session file at path, truncating any previous file
// of the same name. The receipt clock starts now.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log %s: %w", path, err)
	}
	return &Writer{
		path:   path,
		f:      f,
		csv:    csv.NewWriter(f),
		opened: time.Now(),
	}, nil
}

// Path returns the session file path.
func (w *Writer) Path() string { return w.path }

// Counts returns the number of persisted data and comment rows.
func (w *Writer) Counts() (samples, comments int64) {
	return w.samples.Load(), w.comment.Load()
}

// Append assigns a receipt time to the record and writes it durably. Comment
// and data variants are persisted; Malformed and nil lines are ignored here
// because the caller already reported them. The receipt clock is monotonic
// (time.Since), so persisted receipt times never decrease within a session.
func (w *Writer) Append(l telemetry.Line) error {
	receipt := time.Since(w.opened).Seconds()

	switch v := l.(type) {
	case telemetry.Comment:
		if err := w.writeRow([]string{formatFloat(receipt), CommentTag, v.Text}); err != nil {
			return err
		}
		w.comment.Add(1)
		monitoring.Logf("[%.2fs] %s", receipt, v.Text)
		return nil

	case telemetry.DataRecord:
		s := v.Sample
		row := []string{
			formatFloat(receipt),
			formatFloat(s.SourceTime),
			formatFloat(s.ElapsedMS),
			formatFloat(s.EncoderCount),
			formatFloat(s.ExpectedRotation),
			formatFloat(s.SlipPercentage),
			formatDirection(s.Direction),
			formatFloat(s.Load),
			formatFloat(s.CurrentSensor),
			formatFloat(s.MotorCurrent),
			s.Annotation,
		}
		if err := w.writeRow(row); err != nil {
			return err
		}
		w.samples.Add(1)
		monitoring.Logf("[%.2fs] Encoder: %v, Slip: %v%%, Dir: %s",
			receipt, s.EncoderCount, s.SlipPercentage, directionLabel(s.Direction))
		return nil
	}
	return nil
}

// writeRow appends a row and makes it durable before returning.
func (w *Writer) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write session row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush session row: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync session log: %w", err)
	}
	return nil
}

// Close flushes any buffered output and closes the session file. The file
// must never be left with a partial trailing row, so flush errors are
// reported rather than swallowed.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to flush session log on close: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to sync session log on close: %w", err)
	}
	return w.f.Close()
}

// formatFloat renders a numeric field with enough precision to round-trip
// exactly through the loader. NaN sentinels render as "NaN", which
// strconv.ParseFloat accepts on the way back in.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatDirection(forward bool) string {
	if forward {
		return "1"
	}
	return "0"
}

func directionLabel(forward bool) string {
	if forward {
		return "Forward"
	}
	return "Reverse"
}
