package analysis

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float is a float64 that survives JSON round-trips when undefined.
// encoding/json refuses to emit NaN, but an undefined statistic (for example
// a correlation with fewer than two valid points) must serialize explicitly
// rather than be omitted, so NaN marshals as the JSON string "NaN".
type Float float64

// NaN returns the undefined value.
func NaN() Float { return Float(math.NaN()) }

// IsNaN reports whether the value is undefined.
func (f Float) IsNaN() bool { return math.IsNaN(float64(f)) }

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte(`"NaN"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch s {
	case `"NaN"`, "null":
		*f = NaN()
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %s: %w", s, err)
	}
	*f = Float(v)
	return nil
}
