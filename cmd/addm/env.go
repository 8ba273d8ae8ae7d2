package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/manvincent/aDDM-Toolbox/internal/config"
	"github.com/manvincent/aDDM-Toolbox/internal/logging"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
	"github.com/manvincent/aDDM-Toolbox/internal/store"
	"github.com/spf13/cobra"
)

// Random stream indices derived from the run seed. Each consumer gets its
// own so adding one never shifts another.
const (
	streamData = iota + 1
	streamPostFit
	streamPosterior
	streamSubsample
	streamFinal
	streamOptimize
)

// runEnv holds what every command resolves before doing work.
type runEnv struct {
	cfg        *config.Config
	seed       uint64
	numThreads int
	jsonOut    bool
	out        io.Writer
	logger     *slog.Logger
	events     *logging.EventLogger
}

// setup loads the configuration, applies the persistent flags and creates
// the loggers. Events are written to outputDir at debug level and below.
func setup(cmd *cobra.Command, outputDir string) (*runEnv, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose && logging.ParseLevel(cfg.Logging.Level) > slog.LevelDebug {
		cfg.Logging.Level = "debug"
	}
	if seed, _ := cmd.Flags().GetUint64("seed"); seed != 0 {
		cfg.Simulation.Seed = seed
	}
	if n, _ := cmd.Flags().GetInt("num-threads"); n != 0 {
		cfg.Estimation.NumThreads = n
	}
	applyConfigFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	env := &runEnv{
		cfg:        cfg,
		seed:       randutil.Resolve(cfg.Simulation.Seed),
		numThreads: cfg.Estimation.NumThreads,
		jsonOut:    jsonOut,
		out:        cmd.OutOrStdout(),
		logger:     logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()),
	}
	env.cfg.Simulation.Seed = env.seed
	if outputDir != "" {
		env.events = logging.NewEventLogger(outputDir, cfg.Logging.Level)
	}
	env.logger.Info("run configured", "seed", env.seed, "num_threads", env.numThreads)
	return env, nil
}

// applyConfigFlags copies explicitly set command flags over the
// corresponding configuration values.
func applyConfigFlags(cmd *cobra.Command, cfg *config.Config) {
	ints := map[string]*int{
		"bin-step":      &cfg.Histogram.BinStep,
		"max-rt":        &cfg.Histogram.MaxRT,
		"max-fix-bin":   &cfg.Histogram.MaxFixBin,
		"num-fix-dists": &cfg.Simulation.NumFixDists,
		"visual-delay":  &cfg.Simulation.VisualDelay,
		"motor-delay":   &cfg.Simulation.MotorDelay,
	}
	for name, dst := range ints {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst, _ = cmd.Flags().GetInt(name)
		}
	}
}

// Close releases the event log.
func (e *runEnv) Close() {
	e.events.Close()
}

// printf writes human-readable output unless JSON output is selected.
func (e *runEnv) printf(format string, args ...any) {
	if !e.jsonOut {
		fmt.Fprintf(e.out, format, args...)
	}
}

// emit writes v as JSON when JSON output is selected.
func (e *runEnv) emit(v any) error {
	if !e.jsonOut {
		return nil
	}
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openStore opens the run store from the configuration.
func openStore(cfg *config.Config) (*store.SQLiteRunStore, error) {
	dir := cfg.Store.Dir
	if dir == "" {
		var err error
		dir, err = store.DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	s, err := store.NewSQLiteRunStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

// saveRun records a run in the store when the store is enabled. Store
// failures are logged and do not fail the command.
func (e *runEnv) saveRun(cmd *cobra.Command, run store.Run, scores []store.GridScore, bins []store.FixationBin) string {
	if !e.cfg.Store.Enabled {
		return ""
	}
	s, err := openStore(e.cfg)
	if err != nil {
		e.logger.Warn("run not stored", "error", err)
		return ""
	}
	defer s.Close()

	run.Seed = e.seed
	if cfgJSON, err := json.Marshal(e.cfg); err == nil {
		run.Config = string(cfgJSON)
	}
	id, err := s.SaveRun(cmd.Context(), run, scores, bins)
	if err != nil {
		e.logger.Warn("run not stored", "error", err)
		return ""
	}
	e.logger.Info("run stored", "id", id, "path", s.Path())
	return id
}

// ensureDir creates an output directory.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
