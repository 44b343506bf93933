package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Thresholds.TemperatureSetpoint != 60.0 {
		t.Fatalf("setpoint = %v", cfg.Thresholds.TemperatureSetpoint)
	}
	if cfg.Detection.Window != 60 || cfg.Detection.ZThreshold != 2.0 {
		t.Fatalf("detection defaults wrong: %+v", cfg.Detection)
	}
	if cfg.Metrics.SampleInterval != time.Minute {
		t.Fatalf("sample interval = %v", cfg.Metrics.SampleInterval)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log_level: debug
thresholds:
  temperature_setpoint: 55
  temperature_tolerance: 1.5
detection:
  window: 30
  z_threshold: 3.0
storage:
  driver: postgres
  dsn: postgres://localhost/test
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Thresholds.TemperatureSetpoint != 55 || cfg.Thresholds.TemperatureTolerance != 1.5 {
		t.Fatalf("thresholds not applied: %+v", cfg.Thresholds)
	}
	if cfg.Detection.Window != 30 || cfg.Detection.ZThreshold != 3.0 {
		t.Fatalf("detection not applied: %+v", cfg.Detection)
	}
	// untouched sections keep their defaults
	if cfg.Metrics.AvgFlowRatePerUser != 0.008 {
		t.Fatalf("avg flow rate = %v", cfg.Metrics.AvgFlowRatePerUser)
	}
	if len(cfg.Metrics.Tiers.Availability) == 0 {
		t.Fatalf("tier tables not filled")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"detection": {"window": 10}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Detection.Window != 10 {
		t.Fatalf("window = %d", cfg.Detection.Window)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
	}{
		{"empty", "   "},
		{"bad recovery policy", "detection:\n  recovery_policy: always_fine\n"},
		{"bad driver", "storage:\n  driver: mongodb\n"},
		{"level band inverted", "thresholds:\n  level_low: 2.0\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := filepath.Join(dir, c.name+".yaml")
			if err := os.WriteFile(path, []byte(c.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestStaticManager(t *testing.T) {
	m := NewStaticManager(nil)
	cfg := m.Get()
	if cfg == nil || cfg.Detection.Window != 60 {
		t.Fatalf("static manager did not fall back to defaults")
	}
	if m.Path() != "" {
		t.Fatalf("static manager has a path: %q", m.Path())
	}
	reloaded, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded != cfg {
		t.Fatalf("reload of a static manager should be a no-op")
	}
}

func TestManagerReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("detection:\n  window: 15\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.Get().Detection.Window != 15 {
		t.Fatalf("window = %d", m.Get().Detection.Window)
	}
	if err := os.WriteFile(path, []byte("detection:\n  window: 25\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := m.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m.Get().Detection.Window != 25 {
		t.Fatalf("window after reload = %d", m.Get().Detection.Window)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")
	cfg := DefaultConfig()
	cfg.Detection.Window = 42
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Detection.Window != 42 {
		t.Fatalf("window = %d", loaded.Detection.Window)
	}
}
