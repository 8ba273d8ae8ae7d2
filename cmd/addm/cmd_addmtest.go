package main

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
	"github.com/spf13/cobra"
)

func newADDMTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addm-test",
		Short: "Recover known aDDM parameters from simulated data",
		Long: `Build fixation distributions from experimental data, simulate aDDM
trials with known parameters, then estimate the parameters back from the
simulated data by grid search.

Without --trials-file-name the simulated conditions are the value pairs of
the experimental data, so every simulated value difference has a fixation
distribution.

Examples:
  addm addm-test --expdata-file-name expdata.csv --fixations-file-name fixations.csv
  addm addm-test --expdata-file-name expdata.csv --fixations-file-name fixations.csv \
    --theta 0.3 --range-theta 0.2,0.3,0.4 --subject-ids 13,14 --save-figures`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _ := cmd.Flags().GetFloat64("d")
			sigma, _ := cmd.Flags().GetFloat64("sigma")
			theta, _ := cmd.Flags().GetFloat64("theta")
			perCondition, _ := cmd.Flags().GetInt("trials-per-condition")
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

			truth := models.ParameterSet{D: d, Sigma: sigma, Theta: theta}
			if err := truth.Validate(models.ModelADDM); err != nil {
				return fmt.Errorf("invalid parameters: %w", err)
			}
			grid, err := gridFromFlags(cmd, models.ModelADDM)
			if err != nil {
				return err
			}
			ds, err := loadData(cmd, true)
			if err != nil {
				return err
			}
			fixations, err := env.loadFixationData(ds)
			if err != nil {
				return err
			}
			conds, err := conditionsFor(cmd, ds.All(), perCondition)
			if err != nil {
				return err
			}

			data, err := env.simulate(ctx, models.ModelADDM, truth, conds, fixations, randutil.Derive(env.seed, streamData))
			if err != nil {
				return fmt.Errorf("failed to simulate data: %w", err)
			}
			res, err := env.fit(ctx, models.ModelADDM, data, grid, nil)
			if err != nil {
				return err
			}
			postFit, err := env.simulate(ctx, models.ModelADDM, res.BestParams, conds, fixations, randutil.Derive(env.seed, streamPostFit))
			if err != nil {
				return fmt.Errorf("failed to simulate with estimated parameters: %w", err)
			}

			var outputs []string
			if saveSimulations {
				paths, err := saveSimulationSets(outputDir,
					simSet{"addm_test_data", data},
					simSet{"addm_test_post_fit", postFit})
				if err != nil {
					return err
				}
				outputs = append(outputs, paths...)
			}
			if saveSimulations || saveFigures {
				paths, err := env.writeComparison(outputDir, "addm_test", "aDDM test: data vs. best fit", data, postFit, saveFigures)
				if err != nil {
					return err
				}
				outputs = append(outputs, paths...)
			}

			run, scores, bins := fitRun("addm-test", res, fixations)
			summary := newFitSummary(env.seed, res)
			summary.RunID = env.saveRun(cmd, run, scores, bins)
			summary.Truth = &truth
			summary.Outputs = outputs
			return env.report(summary)
		},
	}

	cmd.Flags().Float64("d", 0.006, "Drift scaling parameter used to simulate the data")
	cmd.Flags().Float64("sigma", 0.08, "Noise parameter used to simulate the data")
	cmd.Flags().Float64("theta", 0.5, "Attentional discount used to simulate the data")
	addRangeFlags(cmd, true)
	cmd.Flags().String("trials-file-name", "", "CSV with item_left,item_right[,num_trials] (default value pairs of the data)")
	cmd.Flags().Int("trials-per-condition", constants.DefaultTrialsPerCondition, "Simulated trials per condition")
	addDataFlags(cmd)
	addHistogramFlags(cmd, true)
	addDelayFlags(cmd)
	cmd.Flags().Bool("save-simulations", false, "Write simulated trials and RT histograms to the output directory")
	cmd.Flags().Bool("save-figures", false, "Write RT histogram charts to the output directory")
	cmd.Flags().String("output-dir", ".", "Directory for output files")

	return cmd
}
