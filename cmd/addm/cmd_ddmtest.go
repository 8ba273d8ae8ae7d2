package main

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
	"github.com/spf13/cobra"
)

func newDDMTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ddm-test",
		Short: "Recover known DDM parameters from simulated data",
		Long: `Simulate DDM trials with known parameters, then estimate the parameters
back from the simulated data by grid search and simulate again with the
estimate for comparison.

Examples:
  addm ddm-test --d 0.006 --sigma 0.08
  addm ddm-test --trials-file-name trials.csv --save-simulations --save-figures
  addm ddm-test --range-d 0.004,0.005,0.006 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, _ := cmd.Flags().GetFloat64("d")
			sigma, _ := cmd.Flags().GetFloat64("sigma")
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

			truth := models.ParameterSet{D: d, Sigma: sigma}
			if err := truth.Validate(models.ModelDDM); err != nil {
				return fmt.Errorf("invalid parameters: %w", err)
			}
			grid, err := gridFromFlags(cmd, models.ModelDDM)
			if err != nil {
				return err
			}
			conds, err := conditionsFor(cmd, nil, perCondition)
			if err != nil {
				return err
			}

			data, err := env.simulate(ctx, models.ModelDDM, truth, conds, nil, randutil.Derive(env.seed, streamData))
			if err != nil {
				return fmt.Errorf("failed to simulate data: %w", err)
			}
			res, err := env.fit(ctx, models.ModelDDM, data, grid, nil)
			if err != nil {
				return err
			}
			postFit, err := env.simulate(ctx, models.ModelDDM, res.BestParams, conds, nil, randutil.Derive(env.seed, streamPostFit))
			if err != nil {
				return fmt.Errorf("failed to simulate with estimated parameters: %w", err)
			}

			var outputs []string
			if saveSimulations {
				paths, err := saveSimulationSets(outputDir,
					simSet{"ddm_test_data", data},
					simSet{"ddm_test_post_fit", postFit})
				if err != nil {
					return err
				}
				outputs = append(outputs, paths...)
			}
			if saveSimulations || saveFigures {
				paths, err := env.writeComparison(outputDir, "ddm_test", "DDM test: data vs. best fit", data, postFit, saveFigures)
				if err != nil {
					return err
				}
				outputs = append(outputs, paths...)
			}

			run, scores, bins := fitRun("ddm-test", res, nil)
			summary := newFitSummary(env.seed, res)
			summary.RunID = env.saveRun(cmd, run, scores, bins)
			summary.Truth = &truth
			summary.Outputs = outputs
			return env.report(summary)
		},
	}

	cmd.Flags().Float64("d", 0.006, "Drift scaling parameter used to simulate the data")
	cmd.Flags().Float64("sigma", 0.08, "Noise parameter used to simulate the data")
	addRangeFlags(cmd, false)
	cmd.Flags().String("trials-file-name", "", "CSV with item_left,item_right[,num_trials] (default built-in conditions)")
	cmd.Flags().Int("trials-per-condition", constants.DefaultTrialsPerCondition, "Simulated trials per condition")
	addHistogramFlags(cmd, false)
	cmd.Flags().Bool("save-simulations", false, "Write simulated trials and RT histograms to the output directory")
	cmd.Flags().Bool("save-figures", false, "Write RT histogram charts to the output directory")
	cmd.Flags().String("output-dir", ".", "Directory for output files")

	return cmd
}
