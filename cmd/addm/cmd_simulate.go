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

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate trials with given parameters",
		Long: `Simulate DDM or aDDM trials and write them as expdata and fixations CSV
files. aDDM simulations sample fixations from distributions built from the
experimental data.

Examples:
  addm simulate --model ddm --d 0.006 --sigma 0.08 --num-simulations 500
  addm simulate --d 0.005 --sigma 0.07 --theta 0.4 \
    --expdata-file-name expdata.csv --fixations-file-name fixations.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelName, _ := cmd.Flags().GetString("model")
			d, _ := cmd.Flags().GetFloat64("d")
			sigma, _ := cmd.Flags().GetFloat64("sigma")
			theta, _ := cmd.Flags().GetFloat64("theta")
			perCondition, _ := cmd.Flags().GetInt("num-simulations")
			prefix, _ := cmd.Flags().GetString("prefix")
			outputDir, err := pathFlag(cmd, "output-dir")
			if err != nil {
				return err
			}

			kind, err := models.ParseModelKind(modelName)
			if err != nil {
				return err
			}
			params := models.ParameterSet{D: d, Sigma: sigma}
			if kind == models.ModelADDM {
				params.Theta = theta
			}
			if err := params.Validate(kind); err != nil {
				return fmt.Errorf("invalid parameters: %w", err)
			}
			if perCondition <= 0 {
				return fmt.Errorf("--num-simulations must be positive, got %d", perCondition)
			}
			if prefix == "" {
				prefix = "simulated_" + string(kind)
			}

			env, err := setup(cmd, outputDir)
			if err != nil {
				return err
			}
			defer env.Close()

			var fixations *fixation.Data
			var observed []models.Trial
			if kind == models.ModelADDM {
				ds, err := loadData(cmd, true)
				if err != nil {
					return err
				}
				if fixations, err = env.loadFixationData(ds); err != nil {
					return err
				}
				observed = ds.All()
			}
			conds, err := conditionsFor(cmd, observed, perCondition)
			if err != nil {
				return err
			}

			trials, err := env.simulate(cmd.Context(), kind, params, conds, fixations, randutil.Derive(env.seed, streamData))
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}
			paths, err := saveSimulationSets(outputDir, simSet{prefix, trials})
			if err != nil {
				return err
			}

			var bins []store.FixationBin
			if fixations != nil {
				bins = store.BinsFromData(fixations)
			}
			runID := env.saveRun(cmd, store.Run{
				Command:   "simulate",
				Model:     kind,
				NumTrials: len(trials),
				Best:      &params,
			}, nil, bins)

			if env.jsonOut {
				return env.emit(map[string]any{
					"run_id":     runID,
					"seed":       env.seed,
					"model":      kind,
					"params":     params,
					"conditions": len(conds),
					"trials":     len(trials),
					"outputs":    paths,
				})
			}
			env.printf("Simulated %d %s trials over %d conditions with %s\n", len(trials), kind, len(conds), params.Format(kind))
			for _, path := range paths {
				env.printf("Wrote %s\n", path)
			}
			if runID != "" {
				env.printf("Run id: %s\n", runID)
			}
			return nil
		},
	}

	cmd.Flags().String("model", string(models.ModelADDM), "Model to simulate: ddm or addm")
	cmd.Flags().Float64("d", 0.006, "Drift scaling parameter")
	cmd.Flags().Float64("sigma", 0.08, "Noise parameter")
	cmd.Flags().Float64("theta", 0.5, "Attentional discount (aDDM only)")
	addDelayFlags(cmd)
	cmd.Flags().Int("num-simulations", 100, "Simulated trials per condition")
	cmd.Flags().String("trials-file-name", "", "CSV with item_left,item_right[,num_trials] (default value pairs of the data, or built-in conditions)")
	addDataFlags(cmd)
	cmd.Flags().Int("max-fix-bin", constants.DefaultMaxFixBin, "Longest fixation duration kept in the fixation distributions")
	cmd.Flags().String("prefix", "", "File name prefix (default simulated_<model>)")
	cmd.Flags().String("output-dir", ".", "Directory for output files")

	return cmd
}
