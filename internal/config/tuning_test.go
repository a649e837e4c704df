package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	var c *Tuning // nil config must still answer with defaults
	if got := c.GetHighSlipThresholdPct(); got != 5.0 {
		t.Errorf("GetHighSlipThresholdPct = %v, want 5.0", got)
	}
	if got := c.GetAnomalyWindow(); got != 50 {
		t.Errorf("GetAnomalyWindow = %v, want 50", got)
	}
	if got := c.GetAnomalySigmaMultiplier(); got != 2.0 {
		t.Errorf("GetAnomalySigmaMultiplier = %v, want 2.0", got)
	}
	if got := c.GetCountsPerRevolution(); got != 1440.0 {
		t.Errorf("GetCountsPerRevolution = %v, want 1440", got)
	}
	if got := c.GetSerialBaudRate(); got != 57600 {
		t.Errorf("GetSerialBaudRate = %v, want 57600", got)
	}
	if got := c.GetBootSettle(); got != 2*time.Second {
		t.Errorf("GetBootSettle = %v, want 2s", got)
	}
}

func TestLoadTuningPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	body := `{"high_slip_threshold_pct": 7.5, "anomaly_window": 25, "boot_settle": "500ms"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if got := c.GetHighSlipThresholdPct(); got != 7.5 {
		t.Errorf("threshold = %v, want 7.5", got)
	}
	if got := c.GetAnomalyWindow(); got != 25 {
		t.Errorf("window = %v, want 25", got)
	}
	if got := c.GetBootSettle(); got != 500*time.Millisecond {
		t.Errorf("boot settle = %v, want 500ms", got)
	}
	// unset fields keep their defaults
	if got := c.GetAnomalySigmaMultiplier(); got != 2.0 {
		t.Errorf("sigma multiplier = %v, want default 2.0", got)
	}
}

func TestLoadTuningRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"negative threshold": `{"high_slip_threshold_pct": -1}`,
		"tiny window":        `{"anomaly_window": 1}`,
		"bad boot settle":    `{"boot_settle": "soon"}`,
		"zero baud":          `{"serial_baud_rate": 0}`,
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "tuning.json")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuning(path); err == nil {
			t.Errorf("%s: LoadTuning accepted %s", name, body)
		}
	}
}

func TestLoadTuningRequiresJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Error("LoadTuning accepted a non-.json file")
	}
}
