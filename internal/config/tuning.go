// Package config loads analysis and serial tuning parameters from a JSON
// file. Fields are pointers so a partial file only overrides what it names;
// the Get* accessors supply defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Tuning is the root tuning document. The same JSON shape is accepted by
// both cmd/collector and cmd/analysis so one file can configure a whole rig.
type Tuning struct {
	// Analysis params. The absolute high-slip threshold and the rolling
	// sigma multiplier serve different detectors and are deliberately
	// independent knobs.
	HighSlipThresholdPct   *float64 `json:"high_slip_threshold_pct,omitempty"`
	AnomalyWindow          *int     `json:"anomaly_window,omitempty"`
	AnomalySigmaMultiplier *float64 `json:"anomaly_sigma_multiplier,omitempty"`

	// Wheel geometry params
	CountsPerRevolution *float64 `json:"counts_per_revolution,omitempty"`
	WheelDiameterMetres *float64 `json:"wheel_diameter_metres,omitempty"`

	// Serial params
	SerialBaudRate *int    `json:"serial_baud_rate,omitempty"`
	BootSettle     *string `json:"boot_settle,omitempty"` // duration string like "2s"
}

// LoadTuning loads a Tuning from a JSON file. The file must have a .json
// extension and stay under the max file size.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := &Tuning{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set values are usable.
func (c *Tuning) Validate() error {
	if c.HighSlipThresholdPct != nil && *c.HighSlipThresholdPct <= 0 {
		return fmt.Errorf("high_slip_threshold_pct must be positive, got %f", *c.HighSlipThresholdPct)
	}
	if c.AnomalyWindow != nil && *c.AnomalyWindow < 2 {
		return fmt.Errorf("anomaly_window must be at least 2, got %d", *c.AnomalyWindow)
	}
	if c.AnomalySigmaMultiplier != nil && *c.AnomalySigmaMultiplier <= 0 {
		return fmt.Errorf("anomaly_sigma_multiplier must be positive, got %f", *c.AnomalySigmaMultiplier)
	}
	if c.CountsPerRevolution != nil && *c.CountsPerRevolution <= 0 {
		return fmt.Errorf("counts_per_revolution must be positive, got %f", *c.CountsPerRevolution)
	}
	if c.WheelDiameterMetres != nil && *c.WheelDiameterMetres <= 0 {
		return fmt.Errorf("wheel_diameter_metres must be positive, got %f", *c.WheelDiameterMetres)
	}
	if c.SerialBaudRate != nil && *c.SerialBaudRate <= 0 {
		return fmt.Errorf("serial_baud_rate must be positive, got %d", *c.SerialBaudRate)
	}
	if c.BootSettle != nil && *c.BootSettle != "" {
		if _, err := time.ParseDuration(*c.BootSettle); err != nil {
			return fmt.Errorf("invalid boot_settle %q: %w", *c.BootSettle, err)
		}
	}
	return nil
}

// GetHighSlipThresholdPct returns the absolute slip-event threshold in percent.
func (c *Tuning) GetHighSlipThresholdPct() float64 {
	if c == nil || c.HighSlipThresholdPct == nil {
		return 5.0
	}
	return *c.HighSlipThresholdPct
}

// GetAnomalyWindow returns the rolling-statistics window size in samples.
func (c *Tuning) GetAnomalyWindow() int {
	if c == nil || c.AnomalyWindow == nil {
		return 50
	}
	return *c.AnomalyWindow
}

// GetAnomalySigmaMultiplier returns the rolling-deviation multiplier.
func (c *Tuning) GetAnomalySigmaMultiplier() float64 {
	if c == nil || c.AnomalySigmaMultiplier == nil {
		return 2.0
	}
	return *c.AnomalySigmaMultiplier
}

// GetCountsPerRevolution returns the encoder resolution per wheel revolution.
func (c *Tuning) GetCountsPerRevolution() float64 {
	if c == nil || c.CountsPerRevolution == nil {
		return 1440.0
	}
	return *c.CountsPerRevolution
}

// GetWheelDiameterMetres returns the test wheel diameter.
func (c *Tuning) GetWheelDiameterMetres() float64 {
	if c == nil || c.WheelDiameterMetres == nil {
		return 0.20
	}
	return *c.WheelDiameterMetres
}

// GetSerialBaudRate returns the rig controller baud rate.
func (c *Tuning) GetSerialBaudRate() int {
	if c == nil || c.SerialBaudRate == nil {
		return 57600
	}
	return *c.SerialBaudRate
}

// GetBootSettle returns how long to wait after opening the port for the
// controller to finish its reset before commands are sent.
func (c *Tuning) GetBootSettle() time.Duration {
	if c == nil || c.BootSettle == nil || *c.BootSettle == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.BootSettle)
	if err != nil {
		return 2 * time.Second
	}
	return d
}
