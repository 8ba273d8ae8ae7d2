package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manvincent/aDDM-Toolbox/internal/addm"
	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Simulation.TimeStep != 10 {
		t.Errorf("expected TimeStep 10, got %d", config.Simulation.TimeStep)
	}
	if config.Simulation.Barrier != 1 {
		t.Errorf("expected Barrier 1, got %g", config.Simulation.Barrier)
	}
	if config.Likelihood.DDMMethod != "statespace" {
		t.Errorf("expected DDMMethod 'statespace', got '%s'", config.Likelihood.DDMMethod)
	}
	if config.Likelihood.ADDMMethod != "montecarlo" {
		t.Errorf("expected ADDMMethod 'montecarlo', got '%s'", config.Likelihood.ADDMMethod)
	}
	if config.Histogram.MaxRT != 8000 || config.Histogram.BinStep != 100 {
		t.Errorf("unexpected histogram defaults: %+v", config.Histogram)
	}
	if config.Estimation.NumThreads != 9 {
		t.Errorf("expected NumThreads 9, got %d", config.Estimation.NumThreads)
	}
	if !config.Store.Enabled {
		t.Error("expected Store.Enabled to be true by default")
	}
	if config.Logging.Level != "error" {
		t.Errorf("expected Logging.Level 'error', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
simulation:
  time_step: 20
  seed: 99
likelihood:
  ddm_method: analytic
  num_simulations: 250
histogram:
  max_rt: 5000
store:
  enabled: false
  dir: ${ADDM_TEST_DIR}/runs
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("ADDM_TEST_DIR", "/data")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Simulation.TimeStep != 20 {
		t.Errorf("expected TimeStep 20, got %d", config.Simulation.TimeStep)
	}
	if config.Simulation.Seed != 99 {
		t.Errorf("expected Seed 99, got %d", config.Simulation.Seed)
	}
	if config.Likelihood.DDMMethod != "analytic" {
		t.Errorf("expected DDMMethod 'analytic', got '%s'", config.Likelihood.DDMMethod)
	}
	if config.Likelihood.NumSimulations != 250 {
		t.Errorf("expected NumSimulations 250, got %d", config.Likelihood.NumSimulations)
	}
	if config.Histogram.MaxRT != 5000 {
		t.Errorf("expected MaxRT 5000, got %d", config.Histogram.MaxRT)
	}
	// Unset keys keep defaults
	if config.Histogram.BinStep != 100 {
		t.Errorf("expected default BinStep 100, got %d", config.Histogram.BinStep)
	}
	if config.Store.Enabled {
		t.Error("expected Store.Enabled to be false")
	}
	if config.Store.Dir != "/data/runs" {
		t.Errorf("expected expanded Store.Dir '/data/runs', got '%s'", config.Store.Dir)
	}
}

func TestLoadFromFile_EmptyLogLevelKeepsDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: \"\"\n"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Logging.Level != DefaultLogLevel {
		t.Errorf("expected level %q, got %q", DefaultLogLevel, config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("simulation: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_DefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load without config file failed: %v", err)
	}
	if config.Simulation.TimeStep != 10 {
		t.Errorf("expected default TimeStep, got %d", config.Simulation.TimeStep)
	}

	dir := filepath.Join(home, ".addm")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("estimation:\n  num_threads: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	config, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Estimation.NumThreads != 3 {
		t.Errorf("expected NumThreads 3 from default file, got %d", config.Estimation.NumThreads)
	}

	if _, err := Load(filepath.Join(home, "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ADDM_SEED", "12345")
	t.Setenv("ADDM_NUM_THREADS", "2")
	t.Setenv("ADDM_BARRIER", "1.5")
	t.Setenv("ADDM_ADDM_METHOD", "statespace")
	t.Setenv("ADDM_STORE_ENABLED", "false")
	t.Setenv("ADDM_LOG_LEVEL", "debug")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Simulation.Seed != 12345 {
		t.Errorf("expected Seed 12345, got %d", config.Simulation.Seed)
	}
	if config.Estimation.NumThreads != 2 {
		t.Errorf("expected NumThreads 2, got %d", config.Estimation.NumThreads)
	}
	if config.Simulation.Barrier != 1.5 {
		t.Errorf("expected Barrier 1.5, got %g", config.Simulation.Barrier)
	}
	if config.Likelihood.ADDMMethod != "statespace" {
		t.Errorf("expected ADDMMethod 'statespace', got '%s'", config.Likelihood.ADDMMethod)
	}
	if config.Store.Enabled {
		t.Error("expected Store.Enabled false")
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestEnvOverrides_Malformed(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ADDM_NUM_THREADS", "many")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "ADDM_NUM_THREADS") {
		t.Errorf("expected error naming ADDM_NUM_THREADS, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid default", func(c *Config) {}, ""},
		{"zero time step", func(c *Config) { c.Simulation.TimeStep = 0 }, "time step"},
		{"negative barrier", func(c *Config) { c.Simulation.Barrier = -1 }, "barrier"},
		{"unknown ddm method", func(c *Config) { c.Likelihood.DDMMethod = "exact" }, "ddm"},
		{"unknown addm method", func(c *Config) { c.Likelihood.ADDMMethod = "exact" }, "addm"},
		{"state step too large", func(c *Config) { c.Likelihood.StateStep = 2 }, "state step"},
		{"zero max rt", func(c *Config) { c.Histogram.MaxRT = 0 }, "max_rt"},
		{"max fix bin below step", func(c *Config) { c.Histogram.MaxFixBin = 5 }, "fixation"},
		{"zero threads", func(c *Config) { c.Estimation.NumThreads = 0 }, "num_threads"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, "log level"},
		{"negative visual delay", func(c *Config) { c.Simulation.VisualDelay = -100 }, "delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	c := Default()
	c.Simulation.Seed = 7
	c.Likelihood.DDMMethod = string(ddm.MethodAnalytic)

	d := c.DDMOptions()
	if d.Method != ddm.MethodAnalytic || d.TimeStep != c.Simulation.TimeStep {
		t.Errorf("DDMOptions() = %+v", d)
	}
	a := c.ADDMOptions()
	if a.Method != addm.MethodMonteCarlo || a.Seed != 7 || a.BinStep != c.Histogram.BinStep {
		t.Errorf("ADDMOptions() = %+v", a)
	}
	f := c.FixationOptions()
	if f.BinStep != c.Histogram.FixBinStep || f.NumFixDists != c.Simulation.NumFixDists {
		t.Errorf("FixationOptions() = %+v", f)
	}
}
