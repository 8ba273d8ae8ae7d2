package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/manvincent/aDDM-Toolbox/internal/addm"
	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/dataio"
	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
	"github.com/manvincent/aDDM-Toolbox/internal/estimate"
	"github.com/manvincent/aDDM-Toolbox/internal/fixation"
	"github.com/manvincent/aDDM-Toolbox/internal/histogram"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/pathutil"
	"github.com/manvincent/aDDM-Toolbox/internal/plot"
	"github.com/manvincent/aDDM-Toolbox/internal/store"
	"github.com/spf13/cobra"
)

// Default search ranges.
var (
	defaultRangeD     = []float64{0.005, 0.006, 0.007}
	defaultRangeSigma = []float64{0.065, 0.08, 0.095}
	defaultRangeTheta = []float64{0.3, 0.5, 0.7}
)

func addRangeFlags(cmd *cobra.Command, withTheta bool) {
	cmd.Flags().Float64Slice("range-d", defaultRangeD, "Search range for parameter d")
	cmd.Flags().Float64Slice("range-sigma", defaultRangeSigma, "Search range for parameter sigma")
	if withTheta {
		cmd.Flags().Float64Slice("range-theta", defaultRangeTheta, "Search range for parameter theta")
	}
}

// addHistogramFlags registers the binning flags. Unset flags keep the
// configured values.
func addHistogramFlags(cmd *cobra.Command, withFixations bool) {
	cmd.Flags().Int("bin-step", constants.DefaultBinStep, "RT histogram bin width in milliseconds")
	cmd.Flags().Int("max-rt", constants.DefaultMaxRT, "Upper edge of the RT histograms in milliseconds")
	if withFixations {
		cmd.Flags().Int("max-fix-bin", constants.DefaultMaxFixBin, "Longest fixation duration kept in the fixation distributions")
	}
}

// addDelayFlags registers the aDDM visual and motor delay flags. Unset flags
// keep the configured values.
func addDelayFlags(cmd *cobra.Command) {
	cmd.Flags().Int("visual-delay", 0, "aDDM: milliseconds at the start of each fixation with no drift")
	cmd.Flags().Int("motor-delay", 0, "aDDM: milliseconds between the barrier crossing and the response")
}

// addDataFlags registers the experimental data flags.
func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().String("expdata-file-name", "", "CSV with parcode,trial,rt,choice,item_left,item_right")
	cmd.Flags().String("fixations-file-name", "", "CSV with parcode,trial,fix_item,fix_time")
	cmd.Flags().StringSlice("subject-ids", nil, "Subjects to include (default all)")
}

// addTrialSetFlag registers --trials, which restricts loaded data to cis or
// trans trials.
func addTrialSetFlag(cmd *cobra.Command) {
	cmd.Flags().String("trials", string(models.TrialsAll), "Trials to use: all, cis (same-sign values) or trans (opposite-sign values)")
}

// pathFlag returns the named path flag with ~ and ${VAR} expanded.
func pathFlag(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	path, err := pathutil.Expand(v)
	if err != nil {
		return "", fmt.Errorf("invalid --%s: %w", name, err)
	}
	return path, nil
}

// loadData reads the experimental data named by the data flags. Fixations
// are required when needFixations is set.
func loadData(cmd *cobra.Command, needFixations bool) (*models.Dataset, error) {
	expdata, err := pathFlag(cmd, "expdata-file-name")
	if err != nil {
		return nil, err
	}
	fixations, err := pathFlag(cmd, "fixations-file-name")
	if err != nil {
		return nil, err
	}
	subjects, _ := cmd.Flags().GetStringSlice("subject-ids")
	if expdata == "" {
		return nil, fmt.Errorf("--expdata-file-name is required")
	}
	if needFixations && fixations == "" {
		return nil, fmt.Errorf("--fixations-file-name is required")
	}
	ds, err := dataio.LoadDataset(expdata, fixations, subjects)
	if err != nil {
		return nil, fmt.Errorf("failed to load experimental data: %w", err)
	}
	if cmd.Flags().Lookup("trials") == nil {
		return ds, nil
	}
	name, _ := cmd.Flags().GetString("trials")
	set, err := models.ParseTrialSet(name)
	if err != nil {
		return nil, err
	}
	selected := ds.SelectSet(set)
	if selected.Len() == 0 {
		return nil, fmt.Errorf("no %s trials in %s", set, expdata)
	}
	return selected, nil
}

// conditionsFor returns the conditions in the trials file, or the distinct
// value pairs of trials when no file is given.
func conditionsFor(cmd *cobra.Command, trials []models.Trial, perCondition int) ([]models.TrialCondition, error) {
	path, err := pathFlag(cmd, "trials-file-name")
	if err != nil {
		return nil, err
	}
	if path != "" {
		conds, err := dataio.LoadTrialConditions(path, perCondition)
		if err != nil {
			return nil, fmt.Errorf("failed to load trial conditions: %w", err)
		}
		return conds, nil
	}
	if len(trials) == 0 {
		return models.DefaultTrialConditions(perCondition), nil
	}
	return models.ConditionsFromTrials(trials, perCondition), nil
}

// gridFromFlags builds the parameter grid for kind from the range flags.
func gridFromFlags(cmd *cobra.Command, kind models.ModelKind) (*estimate.Grid, error) {
	rangeD, _ := cmd.Flags().GetFloat64Slice("range-d")
	rangeSigma, _ := cmd.Flags().GetFloat64Slice("range-sigma")
	var rangeTheta []float64
	if kind == models.ModelADDM {
		rangeTheta, _ = cmd.Flags().GetFloat64Slice("range-theta")
	}
	grid, err := estimate.NewGrid(kind, rangeD, rangeSigma, rangeTheta)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter grid: %w", err)
	}
	return grid, nil
}

// likelihoodModel returns the configured likelihood engine for kind.
func (e *runEnv) likelihoodModel(kind models.ModelKind) (estimate.Model, error) {
	switch kind {
	case models.ModelDDM:
		return ddm.NewModel(e.cfg.DDMOptions())
	case models.ModelADDM:
		return addm.NewModel(e.cfg.ADDMOptions())
	default:
		return nil, fmt.Errorf("unknown model %q", kind)
	}
}

// fit runs the grid search.
func (e *runEnv) fit(ctx context.Context, kind models.ModelKind, trials []models.Trial, grid *estimate.Grid, priors *estimate.Priors) (*estimate.Result, error) {
	model, err := e.likelihoodModel(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create likelihood model: %w", err)
	}
	est := &estimate.Estimator{Model: model, NumThreads: e.numThreads, Priors: priors}
	est.SetLogger(e.logger, e.events)

	e.logger.Info("starting grid search", "model", kind, "points", grid.Len(), "trials", len(trials))
	res, err := est.Fit(ctx, trials, grid)
	if err != nil {
		return nil, fmt.Errorf("grid search failed: %w", err)
	}
	e.logger.Info("finished grid search", "best", res.BestParams.Format(kind), "score", res.Scores[res.Best])
	return res, nil
}

// simulate generates trials for every condition with params. fixations is
// required for the aDDM and ignored for the DDM.
func (e *runEnv) simulate(ctx context.Context, kind models.ModelKind, p models.ParameterSet, conds []models.TrialCondition, fixations *fixation.Data, seed uint64) ([]models.Trial, error) {
	switch kind {
	case models.ModelDDM:
		sim, err := ddm.NewSimulator(e.cfg.DDMOptions())
		if err != nil {
			return nil, err
		}
		sim.SetLogger(e.logger)
		return sim.SimulateBatch(ctx, p, conds, seed, e.numThreads)
	case models.ModelADDM:
		if fixations == nil {
			return nil, fmt.Errorf("aDDM simulations need fixation data")
		}
		sim, err := addm.NewSimulator(e.cfg.ADDMOptions(), fixations)
		if err != nil {
			return nil, err
		}
		sim.SetLogger(e.logger)
		return sim.SimulateBatch(ctx, p, conds, seed, e.numThreads)
	default:
		return nil, fmt.Errorf("unknown model %q", kind)
	}
}

// loadFixationData builds the fixation process from observed trials.
func (e *runEnv) loadFixationData(ds *models.Dataset) (*fixation.Data, error) {
	data, err := fixation.Build(ds, e.cfg.FixationOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to build fixation distributions: %w", err)
	}
	e.logger.Info("built fixation distributions", "keys", len(data.Keys()), "p_left_first", data.ProbLeftFirst())
	return data, nil
}

// fitSummary is the JSON form of a grid search result. Scores of failed
// points are not representable in JSON, so only the best point is reported.
type fitSummary struct {
	RunID            string               `json:"run_id,omitempty"`
	Seed             uint64               `json:"seed"`
	Model            models.ModelKind     `json:"model"`
	NumTrials        int                  `json:"num_trials"`
	GridPoints       int                  `json:"grid_points"`
	Best             models.ParameterSet  `json:"best"`
	BestScore        float64              `json:"best_score"`
	PosteriorMean    models.ParameterSet  `json:"posterior_mean"`
	DegenerateTrials []int                `json:"degenerate_trials,omitempty"`
	FailedPoints     []int                `json:"failed_points,omitempty"`
	Truth            *models.ParameterSet `json:"truth,omitempty"`
	Optimized        *estimate.Optimum    `json:"optimized,omitempty"`
	Outputs          []string             `json:"outputs,omitempty"`
}

func newFitSummary(seed uint64, res *estimate.Result) fitSummary {
	return fitSummary{
		Seed:             seed,
		Model:            res.Kind,
		NumTrials:        res.NumTrials,
		GridPoints:       len(res.Points),
		Best:             res.BestParams,
		BestScore:        res.Scores[res.Best],
		PosteriorMean:    res.PosteriorMean(),
		DegenerateTrials: res.DegenerateTrials,
		FailedPoints:     res.FailedPoints,
	}
}

// report prints a fit summary in the selected format.
func (e *runEnv) report(s fitSummary) error {
	if e.jsonOut {
		return e.emit(s)
	}
	if s.Truth != nil {
		e.printf("True parameters:  %s\n", s.Truth.Format(s.Model))
	}
	e.printf("Best parameters:  %s\n", s.Best.Format(s.Model))
	e.printf("Log score:        %.4f (%d trials, %d grid points)\n", s.BestScore, s.NumTrials, s.GridPoints)
	e.printf("Posterior mean:   %s\n", s.PosteriorMean.Format(s.Model))
	if s.Optimized != nil {
		e.printf("Optimized:        %s\n", s.Optimized.Params.Format(s.Model))
		e.printf("Log-likelihood:   %.4f (grid argmax %.4f, %d evaluations)\n",
			s.Optimized.LogLikelihood, s.Optimized.StartLogLik, s.Optimized.Evaluations)
	}
	if len(s.DegenerateTrials) > 0 {
		e.printf("Degenerate trials: %d (floored at every grid point)\n", len(s.DegenerateTrials))
	}
	if len(s.FailedPoints) > 0 {
		e.printf("Failed grid points: %d\n", len(s.FailedPoints))
	}
	for _, path := range s.Outputs {
		e.printf("Wrote %s\n", path)
	}
	if s.RunID != "" {
		e.printf("Run id:           %s\n", s.RunID)
	}
	return nil
}

// writeComparison writes the data-vs-simulation RT histograms and choice
// curves as CSV and, when figures is set, as PNG charts. It returns the paths
// written.
func (e *runEnv) writeComparison(dir, prefix, title string, data, sim []models.Trial, figures bool) ([]string, error) {
	binning, err := histogram.NewBinning(e.cfg.Histogram.BinStep, e.cfg.Histogram.MaxRT)
	if err != nil {
		return nil, err
	}
	dataHist, err := histogram.NewRT(binning, data)
	if err != nil {
		return nil, err
	}
	simHist, err := histogram.NewRT(binning, sim)
	if err != nil {
		return nil, err
	}
	if dataHist.Excluded > 0 || simHist.Excluded > 0 {
		e.logger.Warn("trials beyond max RT left out of histograms",
			"data", dataHist.Excluded, "simulated", simHist.Excluded, "max_rt", binning.Max)
	}
	if dist, err := dataHist.Distance(simHist); err == nil {
		e.logger.Info("RT histogram distance", "distance", dist)
	}

	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	csvPath := filepath.Join(dir, prefix+"_rt_histograms.csv")
	if err := dataio.WriteFile(csvPath, func(w io.Writer) error {
		return dataio.WriteRTHistograms(w, dataHist, simHist)
	}); err != nil {
		return nil, err
	}
	paths := []string{csvPath}

	if figures {
		pngPath := filepath.Join(dir, prefix+"_rt_histograms.png")
		if err := dataio.WriteFile(pngPath, func(w io.Writer) error {
			return plot.RTHistograms(w, title, dataHist, simHist)
		}); err != nil {
			return nil, err
		}
		paths = append(paths, pngPath)
	}

	dataCurve := histogram.NewChoiceCurve(data)
	simCurve := histogram.NewChoiceCurve(sim)
	curvePath := filepath.Join(dir, prefix+"_choice_curves.csv")
	if err := dataio.WriteFile(curvePath, func(w io.Writer) error {
		return dataio.WriteChoiceCurves(w, dataCurve, simCurve)
	}); err != nil {
		return nil, err
	}
	paths = append(paths, curvePath)

	if figures {
		if len(dataCurve.ValueDiffs) < 2 || len(simCurve.ValueDiffs) < 2 {
			e.logger.Warn("too few value differences for a choice curve figure",
				"data", len(dataCurve.ValueDiffs), "simulated", len(simCurve.ValueDiffs))
			return paths, nil
		}
		pngPath := filepath.Join(dir, prefix+"_choice_curves.png")
		if err := dataio.WriteFile(pngPath, func(w io.Writer) error {
			return plot.ChoiceCurves(w, title, dataCurve, simCurve)
		}); err != nil {
			return nil, err
		}
		paths = append(paths, pngPath)
	}
	return paths, nil
}

// simSet is a named batch of simulated trials.
type simSet struct {
	prefix string
	trials []models.Trial
}

// saveSimulationSets writes each set as <prefix>_expdata.csv and, for aDDM
// trials, <prefix>_fixations.csv.
func saveSimulationSets(dir string, sets ...simSet) ([]string, error) {
	var paths []string
	for _, set := range sets {
		written, err := dataio.WriteSimulations(dir, set.prefix, set.trials)
		if err != nil {
			return nil, fmt.Errorf("failed to save %s simulations: %w", set.prefix, err)
		}
		paths = append(paths, written...)
	}
	return paths, nil
}

// writeScores writes every grid point's score.
func writeScores(dir, prefix string, res *estimate.Result) (string, error) {
	if err := ensureDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, prefix+"_scores.csv")
	if err := dataio.WriteFile(path, func(w io.Writer) error {
		return dataio.WriteScores(w, res)
	}); err != nil {
		return "", err
	}
	return path, nil
}

// fitRun builds the stored form of a fit.
func fitRun(command string, res *estimate.Result, fixations *fixation.Data) (store.Run, []store.GridScore, []store.FixationBin) {
	best := res.BestParams
	run := store.Run{
		Command:   command,
		Model:     res.Kind,
		NumTrials: res.NumTrials,
		Best:      &best,
	}
	var bins []store.FixationBin
	if fixations != nil {
		bins = store.BinsFromData(fixations)
	}
	return run, store.ScoresFromResult(res), bins
}
