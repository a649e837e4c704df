// Package telemetry turns raw lines from the wheel rig controller into typed
// records. The controller emits comma-delimited data rows and '#'-prefixed
// status comments over the serial link; classification happens exactly once
// here and downstream code switches on the resulting variant.
package telemetry

import (
	"math"
	"strconv"
	"strings"
)

// CommentMarker prefixes controller status lines (boot banners, direction
// change notices, slip warnings).
const CommentMarker = "#"

// MinDataFields is the minimum number of delimited fields a data row must
// carry to be accepted. Fields past the schema are annotation text.
const MinDataFields = 9

// Known annotation tags emitted by the controller firmware on data rows.
const (
	AnnotationDirectionChange = "DIRECTION_CHANGE"
	AnnotationSlipDetected    = "SLIP_DETECTED"
)

// SensorSample is one parsed data record. Numeric fields that failed to
// decode hold NaN; a sample is never dropped for a single bad field.
type SensorSample struct {
	// ReceiptTime is seconds since the session log was opened, assigned by
	// the session writer from a monotonic clock. Zero until persisted.
	ReceiptTime float64 `json:"receipt_time"`

	SourceTime       float64 `json:"source_time"` // controller wall-clock, not trusted for ordering
	ElapsedMS        float64 `json:"elapsed_ms"`
	EncoderCount     float64 `json:"encoder_count"`
	ExpectedRotation float64 `json:"expected_rotation"`
	SlipPercentage   float64 `json:"slip_percentage"`
	Direction        bool    `json:"direction"` // true = forward
	Load             float64 `json:"load"`
	CurrentSensor    float64 `json:"current_sensor"`
	MotorCurrent     float64 `json:"motor_current"`
	Annotation       string  `json:"annotation,omitempty"`
}

// Line is the result of classifying one decoded line from the controller.
// Exactly one of Comment, DataRecord, or Malformed is produced per non-empty
// line.
type Line interface {
	isLine()
}

// Comment is a '#'-prefixed status line. Text retains the marker.
type Comment struct {
	Text string
}

// DataRecord is a data row that met the minimum field count.
type DataRecord struct {
	Sample SensorSample
}

// Malformed is a non-empty line that is neither a comment nor a well-shaped
// data row. It is reported and skipped, never retried.
type Malformed struct {
	Raw    string
	Reason string
}

func (Comment) isLine()    {}
func (DataRecord) isLine() {}
func (Malformed) isLine()  {}

// ParseLine classifies one decoded line. Blank lines yield nil.
func ParseLine(line string) Line {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, CommentMarker) {
		return Comment{Text: line}
	}

	fields := strings.Split(line, ",")
	if len(fields) < MinDataFields {
		return Malformed{
			Raw:    line,
			Reason: "expected at least " + strconv.Itoa(MinDataFields) + " fields, got " + strconv.Itoa(len(fields)),
		}
	}

	s := SensorSample{
		SourceTime:       CoerceFloat(fields[0]),
		ElapsedMS:        CoerceFloat(fields[1]),
		EncoderCount:     CoerceFloat(fields[2]),
		ExpectedRotation: CoerceFloat(fields[3]),
		SlipPercentage:   CoerceFloat(fields[4]),
		Direction:        CoerceDirection(fields[5]),
		Load:             CoerceFloat(fields[6]),
		CurrentSensor:    CoerceFloat(fields[7]),
		MotorCurrent:     CoerceFloat(fields[8]),
	}
	if len(fields) > MinDataFields {
		s.Annotation = strings.TrimSpace(strings.Join(fields[MinDataFields:], ","))
	}
	return DataRecord{Sample: s}
}

// CoerceFloat decodes a single numeric field. Failures become the NaN
// missing sentinel for that field only. The session loader shares this so
// live parsing and reload coerce identically.
func CoerceFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// CoerceDirection interprets the direction field as an integer flag: nonzero
// means forward. The field is boolean in the data model, so decode failures
// collapse to reverse rather than a sentinel.
func CoerceDirection(s string) bool {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return v != 0
}
