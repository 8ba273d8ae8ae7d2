// Package config provides unified configuration loading for the toolbox.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manvincent/aDDM-Toolbox/internal/addm"
	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
	"github.com/manvincent/aDDM-Toolbox/internal/fixation"
	"github.com/manvincent/aDDM-Toolbox/internal/pathutil"
	"gopkg.in/yaml.v3"
)

// Config contains all toolbox configuration settings.
type Config struct {
	// Simulation contains the model constants shared by simulators and
	// likelihoods.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Likelihood selects and tunes the likelihood methods.
	Likelihood LikelihoodConfig `json:"likelihood" yaml:"likelihood"`

	// Histogram contains RT and fixation binning settings.
	Histogram HistogramConfig `json:"histogram" yaml:"histogram"`

	// Estimation contains grid-search settings.
	Estimation EstimationConfig `json:"estimation" yaml:"estimation"`

	// Store configures the SQLite run store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig holds the model constants.
type SimulationConfig struct {
	TimeStep    int     `json:"time_step" yaml:"time_step"` // milliseconds
	Barrier     float64 `json:"barrier" yaml:"barrier"`
	MaxSteps    int     `json:"max_steps" yaml:"max_steps"`
	MaxRestarts int     `json:"max_restarts" yaml:"max_restarts"`
	MaxAttempts int     `json:"max_attempts" yaml:"max_attempts"`
	NumFixDists int     `json:"num_fix_dists" yaml:"num_fix_dists"`

	// VisualDelay and MotorDelay (ms) shape the aDDM only. See addm.Options.
	VisualDelay int `json:"visual_delay" yaml:"visual_delay"`
	MotorDelay  int `json:"motor_delay" yaml:"motor_delay"`

	// Seed drives every random stream. Zero picks a seed from the clock.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// LikelihoodConfig selects the likelihood methods.
type LikelihoodConfig struct {
	// DDMMethod is "statespace" (default) or "analytic".
	DDMMethod string `json:"ddm_method" yaml:"ddm_method"`

	// ADDMMethod is "montecarlo" (default) or "statespace".
	ADDMMethod string `json:"addm_method" yaml:"addm_method"`

	StateStep      float64 `json:"state_step" yaml:"state_step"`
	NumSimulations int     `json:"num_simulations" yaml:"num_simulations"`
}

// HistogramConfig holds binning settings in milliseconds.
type HistogramConfig struct {
	BinStep    int `json:"bin_step" yaml:"bin_step"`
	MaxRT      int `json:"max_rt" yaml:"max_rt"`
	FixBinStep int `json:"fix_bin_step" yaml:"fix_bin_step"`
	MaxFixBin  int `json:"max_fix_bin" yaml:"max_fix_bin"`
}

// EstimationConfig configures the grid search.
type EstimationConfig struct {
	NumThreads int `json:"num_threads" yaml:"num_threads"`
}

// StoreConfig configures the run store.
type StoreConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir holds the database. Empty means ~/.addm.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "error" (default), "warn", "info",
	// "debug" or "trace". "debug" and "trace" also write events.jsonl to the
	// output directory.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with the standard model defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			TimeStep:    constants.DefaultTimeStep,
			Barrier:     constants.DefaultBarrier,
			MaxSteps:    constants.DefaultMaxSteps,
			MaxRestarts: constants.DefaultMaxAttempts,
			MaxAttempts: constants.DefaultBatchRetries,
			NumFixDists: constants.DefaultNumFixDists,
		},
		Likelihood: LikelihoodConfig{
			DDMMethod:      string(ddm.MethodStateSpace),
			ADDMMethod:     string(addm.MethodMonteCarlo),
			StateStep:      constants.DefaultStateStep,
			NumSimulations: constants.DefaultLikelihoodSimulations,
		},
		Histogram: HistogramConfig{
			BinStep:    constants.DefaultBinStep,
			MaxRT:      constants.DefaultMaxRT,
			FixBinStep: constants.DefaultFixBinStep,
			MaxFixBin:  constants.DefaultMaxFixBin,
		},
		Estimation: EstimationConfig{
			NumThreads: constants.DefaultNumThreads,
		},
		Store: StoreConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// DefaultLogLevel keeps the CLI quiet except for the final error or result.
const DefaultLogLevel = "error"

// DefaultPath returns ~/.addm/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".addm", "config.yaml"), nil
}

// Load loads configuration from path, or from the default location when path
// is empty, then applies environment variable overrides.
// Order: defaults -> config file -> environment variables
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	} else if defaultPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(defaultPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(defaultPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Unset keys keep
// their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if config.Store.Dir, err = pathutil.Expand(config.Store.Dir); err != nil {
		return nil, fmt.Errorf("invalid store dir: %w", err)
	}
	// An empty level in the file means the default, not slog's info.
	config.Logging.Level = strings.ToLower(strings.TrimSpace(config.Logging.Level))
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.DDMOptions().Validate(); err != nil {
		return fmt.Errorf("invalid ddm settings: %w", err)
	}
	if err := c.ADDMOptions().Validate(); err != nil {
		return fmt.Errorf("invalid addm settings: %w", err)
	}
	if err := c.FixationOptions().Validate(); err != nil {
		return fmt.Errorf("invalid fixation settings: %w", err)
	}
	if c.Histogram.BinStep <= 0 || c.Histogram.MaxRT <= 0 {
		return fmt.Errorf("bin_step and max_rt must be positive, got %d and %d", c.Histogram.BinStep, c.Histogram.MaxRT)
	}
	if c.Estimation.NumThreads < 1 {
		return fmt.Errorf("num_threads must be at least 1, got %d", c.Estimation.NumThreads)
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q (valid: error, warn, info, debug, trace)", c.Logging.Level)
	}
	return nil
}

// DDMOptions returns the DDM simulator and likelihood options.
func (c *Config) DDMOptions() ddm.Options {
	return ddm.Options{
		TimeStep:    c.Simulation.TimeStep,
		Barrier:     c.Simulation.Barrier,
		MaxSteps:    c.Simulation.MaxSteps,
		MaxAttempts: c.Simulation.MaxAttempts,
		StateStep:   c.Likelihood.StateStep,
		Method:      ddm.Method(c.Likelihood.DDMMethod),
	}
}

// ADDMOptions returns the aDDM simulator and likelihood options. The seed is
// filled in by the caller once it has been resolved.
func (c *Config) ADDMOptions() addm.Options {
	return addm.Options{
		TimeStep:       c.Simulation.TimeStep,
		Barrier:        c.Simulation.Barrier,
		MaxSteps:       c.Simulation.MaxSteps,
		MaxRestarts:    c.Simulation.MaxRestarts,
		MaxAttempts:    c.Simulation.MaxAttempts,
		StateStep:      c.Likelihood.StateStep,
		NumSimulations: c.Likelihood.NumSimulations,
		BinStep:        c.Histogram.BinStep,
		Seed:           c.Simulation.Seed,
		Method:         addm.Method(c.Likelihood.ADDMMethod),
		VisualDelay:    c.Simulation.VisualDelay,
		MotorDelay:     c.Simulation.MotorDelay,
	}
}

// FixationOptions returns the fixation-distribution binning options.
func (c *Config) FixationOptions() fixation.Options {
	return fixation.Options{
		TimeStep:    c.Simulation.TimeStep,
		BinStep:     c.Histogram.FixBinStep,
		MaxFixBin:   c.Histogram.MaxFixBin,
		NumFixDists: c.Simulation.NumFixDists,
	}
}

// applyEnvOverrides applies ADDM_* environment variable overrides. Malformed
// numbers are reported rather than ignored.
func applyEnvOverrides(config *Config) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"ADDM_TIME_STEP", &config.Simulation.TimeStep},
		{"ADDM_MAX_STEPS", &config.Simulation.MaxSteps},
		{"ADDM_NUM_FIX_DISTS", &config.Simulation.NumFixDists},
		{"ADDM_VISUAL_DELAY", &config.Simulation.VisualDelay},
		{"ADDM_MOTOR_DELAY", &config.Simulation.MotorDelay},
		{"ADDM_NUM_SIMULATIONS", &config.Likelihood.NumSimulations},
		{"ADDM_BIN_STEP", &config.Histogram.BinStep},
		{"ADDM_MAX_RT", &config.Histogram.MaxRT},
		{"ADDM_MAX_FIX_BIN", &config.Histogram.MaxFixBin},
		{"ADDM_NUM_THREADS", &config.Estimation.NumThreads},
	}
	for _, e := range ints {
		if v := os.Getenv(e.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", e.name, v, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("ADDM_BARRIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ADDM_BARRIER %q: %w", v, err)
		}
		config.Simulation.Barrier = f
	}
	if v := os.Getenv("ADDM_STATE_STEP"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ADDM_STATE_STEP %q: %w", v, err)
		}
		config.Likelihood.StateStep = f
	}
	if v := os.Getenv("ADDM_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ADDM_SEED %q: %w", v, err)
		}
		config.Simulation.Seed = n
	}

	if v := os.Getenv("ADDM_DDM_METHOD"); v != "" {
		config.Likelihood.DDMMethod = v
	}
	if v := os.Getenv("ADDM_ADDM_METHOD"); v != "" {
		config.Likelihood.ADDMMethod = v
	}
	if v := os.Getenv("ADDM_STORE_ENABLED"); v != "" {
		config.Store.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ADDM_STORE_DIR"); v != "" {
		dir, err := pathutil.Expand(v)
		if err != nil {
			return fmt.Errorf("invalid ADDM_STORE_DIR %q: %w", v, err)
		}
		config.Store.Dir = dir
	}
	if v := strings.TrimSpace(os.Getenv("ADDM_LOG_LEVEL")); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}
	return nil
}
