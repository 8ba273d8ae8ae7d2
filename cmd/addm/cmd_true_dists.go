package main

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/fixation"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
	"github.com/manvincent/aDDM-Toolbox/internal/store"
	"github.com/spf13/cobra"
)

// trueDistsSummary is the JSON form of a correction run.
type trueDistsSummary struct {
	RunID         string                    `json:"run_id,omitempty"`
	Seed          uint64                    `json:"seed"`
	Params        models.ParameterSet       `json:"params"`
	NumTrials     int                       `json:"num_trials"`
	ProbLeftFirst float64                   `json:"p_left_first"`
	Distributions int                       `json:"distributions"`
	Iterations    []fixation.IterationStats `json:"iterations"`
	Simulated     int                       `json:"simulated_trials"`
	Outputs       []string                  `json:"outputs,omitempty"`
}

func newTrueDistsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "true-dists",
		Short: "Correct fixation distributions for interruption by the decision",
		Long: `Estimate the uninterrupted item-fixation duration distributions.

Observed non-last fixations under-represent long fixations, because a long
fixation is more likely to be cut short by the decision. Each pass simulates
aDDM trials with the current distributions, measures how often a fixation of
each duration ends a trial, and reweights the empirical distributions by
that rate. A final simulation uses the corrected distributions.

Examples:
  addm true-dists --expdata-file-name expdata.csv --fixations-file-name fixations.csv
  addm true-dists --expdata-file-name expdata.csv --fixations-file-name fixations.csv \
    --d 0.005 --sigma 0.07 --theta 0.4 --num-iterations 5 --save-simulations`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _ := cmd.Flags().GetFloat64("d")
			sigma, _ := cmd.Flags().GetFloat64("sigma")
			theta, _ := cmd.Flags().GetFloat64("theta")
			numIterations, _ := cmd.Flags().GetInt("num-iterations")
			perCondition, _ := cmd.Flags().GetInt("simulations-per-condition")
			saveSimulations, _ := cmd.Flags().GetBool("save-simulations")
			saveFigures, _ := cmd.Flags().GetBool("save-figures")
			outputDir, err := pathFlag(cmd, "output-dir")
			if err != nil {
				return err
			}

			env, err := setup(cmd, outputDir)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx := cmd.Context()

			params := models.ParameterSet{D: d, Sigma: sigma, Theta: theta}
			if err := params.Validate(models.ModelADDM); err != nil {
				return fmt.Errorf("invalid parameters: %w", err)
			}
			ds, err := loadData(cmd, true)
			if err != nil {
				return err
			}
			data, err := env.loadFixationData(ds)
			if err != nil {
				return err
			}
			conds, err := conditionsFor(cmd, ds.All(), perCondition)
			if err != nil {
				return err
			}

			corrector := &fixation.Corrector{
				Params:                  params,
				Model:                   env.cfg.ADDMOptions(),
				NumIterations:           numIterations,
				SimulationsPerCondition: perCondition,
				NumThreads:              env.numThreads,
				Seed:                    randutil.Derive(env.seed, streamData),
			}
			corrector.SetLogger(env.logger, env.events)
			corrected, stats, err := corrector.Correct(ctx, data, conds)
			if err != nil {
				return fmt.Errorf("fixation correction failed: %w", err)
			}

			final, err := env.simulate(ctx, models.ModelADDM, params, conds, corrected, randutil.Derive(env.seed, streamFinal))
			if err != nil {
				return fmt.Errorf("failed to simulate with corrected distributions: %w", err)
			}

			var outputs []string
			if saveSimulations {
				paths, err := saveSimulationSets(outputDir, simSet{"true_dists", final})
				if err != nil {
					return err
				}
				outputs = append(outputs, paths...)
			}
			if saveSimulations || saveFigures {
				paths, err := env.writeComparison(outputDir, "true_dists", "Data vs. corrected fixations", ds.All(), final, saveFigures)
				if err != nil {
					return err
				}
				outputs = append(outputs, paths...)
			}

			summary := trueDistsSummary{
				Seed:          env.seed,
				Params:        params,
				NumTrials:     ds.Len(),
				ProbLeftFirst: corrected.ProbLeftFirst(),
				Distributions: len(corrected.Keys()),
				Iterations:    stats,
				Simulated:     len(final),
				Outputs:       outputs,
			}
			summary.RunID = env.saveRun(cmd, store.Run{
				Command:   "true-dists",
				Model:     models.ModelADDM,
				NumTrials: ds.Len(),
				Best:      &params,
			}, nil, store.BinsFromData(corrected))

			if env.jsonOut {
				return env.emit(summary)
			}
			env.printf("Parameters:       %s\n", params.Format(models.ModelADDM))
			env.printf("Distributions:    %d (p_left_first %.3f)\n", summary.Distributions, summary.ProbLeftFirst)
			for _, st := range stats {
				env.printf("Pass %d: %d simulated trials, %d last fixations, %d of %d bins unobserved\n",
					st.Iteration, st.SimulatedTrials, st.LastFixations, st.Reweight.ZeroObservationBins, st.Reweight.Bins)
			}
			env.printf("Final simulation: %d trials\n", summary.Simulated)
			for _, path := range outputs {
				env.printf("Wrote %s\n", path)
			}
			if summary.RunID != "" {
				env.printf("Run id:           %s\n", summary.RunID)
			}
			return nil
		},
	}

	cmd.Flags().Float64("d", 0.006, "Drift scaling parameter")
	cmd.Flags().Float64("sigma", 0.08, "Noise parameter")
	cmd.Flags().Float64("theta", 0.5, "Attentional discount")
	cmd.Flags().Int("num-iterations", constants.DefaultNumIterations, "Correction passes after the observed-data pass")
	cmd.Flags().Int("simulations-per-condition", constants.DefaultTrialsPerCondition, "Simulated trials per condition in each pass")
	cmd.Flags().Int("num-fix-dists", constants.DefaultNumFixDists, "Number of fixation classes (later fixations share the last class)")
	cmd.Flags().String("trials-file-name", "", "CSV with item_left,item_right (default value pairs of the data)")
	addDataFlags(cmd)
	addTrialSetFlag(cmd)
	addHistogramFlags(cmd, true)
	addDelayFlags(cmd)
	cmd.Flags().Bool("save-simulations", false, "Write the final simulation and RT histograms to the output directory")
	cmd.Flags().Bool("save-figures", false, "Write RT histogram charts to the output directory")
	cmd.Flags().String("output-dir", ".", "Directory for output files")

	return cmd
}
