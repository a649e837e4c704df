package analysis

import (
	"github.com/banshee-data/slipbench/internal/config"
	"github.com/banshee-data/slipbench/internal/units"
)

// Params are the tunable analysis inputs. The absolute high-slip threshold
// (event counting) and the rolling sigma multiplier (anomaly flagging) serve
// different detectors and are configured independently.
type Params struct {
	HighSlipThreshold   float64 // percent, absolute value
	Window              int     // rolling window size in samples
	SigmaMultiplier     float64 // rolling deviation multiplier
	CountsPerRevolution float64
	WheelDiameterMetres float64
}

// DefaultParams returns the rig defaults.
func DefaultParams() Params {
	return Params{
		HighSlipThreshold:   5.0,
		Window:              50,
		SigmaMultiplier:     2.0,
		CountsPerRevolution: units.DefaultCountsPerRevolution,
		WheelDiameterMetres: units.DefaultWheelDiameterMetres,
	}
}

// ParamsFromTuning resolves Params from a tuning file. A nil tuning yields
// the defaults.
func ParamsFromTuning(c *config.Tuning) Params {
	return Params{
		HighSlipThreshold:   c.GetHighSlipThresholdPct(),
		Window:              c.GetAnomalyWindow(),
		SigmaMultiplier:     c.GetAnomalySigmaMultiplier(),
		CountsPerRevolution: c.GetCountsPerRevolution(),
		WheelDiameterMetres: c.GetWheelDiameterMetres(),
	}
}
