package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/manvincent/aDDM-Toolbox/internal/dataio"
	"github.com/manvincent/aDDM-Toolbox/internal/estimate"
	"github.com/manvincent/aDDM-Toolbox/internal/fixation"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
	"github.com/spf13/cobra"
)

func newFitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Estimate model parameters from experimental data",
		Long: `Estimate DDM or aDDM parameters from experimental choices, response
times and fixations by grid search. With a priors file the search maximizes
the posterior instead of the likelihood. With --method optimize the grid
argmax seeds a Nelder-Mead search over continuous parameters. --trials
restricts the fit to cis or trans trials.

After the search, trials are simulated with the best parameters (and, with
--posterior-samples, with parameter sets drawn from the grid posterior) for
comparison with the data.

Examples:
  addm fit --model ddm --expdata-file-name expdata.csv
  addm fit --expdata-file-name expdata.csv --fixations-file-name fixations.csv \
    --range-theta 0.3,0.5,0.7 --num-trials 100 --save-scores
  addm fit --expdata-file-name expdata.csv --fixations-file-name fixations.csv \
    --split-odd-even --priors-file-name priors.csv --posterior-samples 20
  addm fit --model ddm --expdata-file-name expdata.csv --trials cis --method optimize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelName, _ := cmd.Flags().GetString("model")
			numTrials, _ := cmd.Flags().GetInt("num-trials")
			priorsFile, err := pathFlag(cmd, "priors-file-name")
			if err != nil {
				return err
			}
			numSimulations, _ := cmd.Flags().GetInt("num-simulations")
			splitOddEven, _ := cmd.Flags().GetBool("split-odd-even")
			posteriorSamples, _ := cmd.Flags().GetInt("posterior-samples")
			saveSimulations, _ := cmd.Flags().GetBool("save-simulations")
			saveFigures, _ := cmd.Flags().GetBool("save-figures")
			saveScores, _ := cmd.Flags().GetBool("save-scores")
			method, _ := cmd.Flags().GetString("method")
			restarts, _ := cmd.Flags().GetInt("optimize-restarts")
			outputDir, err := pathFlag(cmd, "output-dir")
			if err != nil {
				return err
			}

			kind, err := models.ParseModelKind(modelName)
			if err != nil {
				return err
			}
			if numTrials < 0 || numSimulations < 0 || posteriorSamples < 0 {
				return fmt.Errorf("--num-trials, --num-simulations and --posterior-samples must be non-negative")
			}
			switch method {
			case methodGrid:
			case methodOptimize:
				if priorsFile != "" {
					return fmt.Errorf("--method optimize maximizes the likelihood and cannot use --priors-file-name")
				}
				if restarts < 0 {
					return fmt.Errorf("--optimize-restarts must be non-negative")
				}
			default:
				return fmt.Errorf("unknown method %q (valid: %s, %s)", method, methodGrid, methodOptimize)
			}

			env, err := setup(cmd, outputDir)
			if err != nil {
				return err
			}
			defer env.Close()
			ctx := cmd.Context()

			grid, err := gridFromFlags(cmd, kind)
			if err != nil {
				return err
			}
			var priors *estimate.Priors
			if priorsFile != "" {
				weights, err := dataio.LoadPriors(priorsFile)
				if err != nil {
					return fmt.Errorf("failed to load priors: %w", err)
				}
				if priors, err = estimate.NewPriors(weights); err != nil {
					return fmt.Errorf("invalid priors: %w", err)
				}
			}

			ds, err := loadData(cmd, kind == models.ModelADDM)
			if err != nil {
				return err
			}
			fitData, fixData := ds, ds
			if splitOddEven {
				fitData = ds.Select(func(t models.Trial) bool { return t.ID%2 != 0 })
				fixData = ds.Select(func(t models.Trial) bool { return t.ID%2 == 0 })
				env.logger.Info("split data by trial id", "fit", fitData.Len(), "fixations", fixData.Len())
			}
			if numTrials > 0 {
				fitData = subsample(fitData, numTrials, randutil.New(env.seed, streamSubsample))
			}

			var fixations *fixation.Data
			if kind == models.ModelADDM {
				if fixations, err = env.loadFixationData(fixData); err != nil {
					return err
				}
			}

			trials := fitData.All()
			res, err := env.fit(ctx, kind, trials, grid, priors)
			if err != nil {
				return err
			}
			best := res.BestParams
			var optimum *estimate.Optimum
			if method == methodOptimize {
				if optimum, err = env.optimize(ctx, kind, trials, best, restarts); err != nil {
					return err
				}
				best = optimum.Params
			}

			var outputs []string
			if saveScores {
				path, err := writeScores(outputDir, "fit", res)
				if err != nil {
					return err
				}
				outputs = append(outputs, path)
			}

			if numSimulations > 0 {
				conds := models.ConditionsFromTrials(trials, numSimulations)
				postFit, err := env.simulate(ctx, kind, best, conds, fixations, randutil.Derive(env.seed, streamPostFit))
				if err != nil {
					return fmt.Errorf("failed to simulate with estimated parameters: %w", err)
				}
				sets := []simSet{{"fit_post_fit", postFit}}

				if posteriorSamples > 0 {
					posterior, err := env.simulatePosterior(cmd, res, conds, fixations, posteriorSamples)
					if err != nil {
						return err
					}
					sets = append(sets, simSet{"fit_posterior", posterior})
				}

				if saveSimulations {
					paths, err := saveSimulationSets(outputDir, sets...)
					if err != nil {
						return err
					}
					outputs = append(outputs, paths...)
				}
				if saveSimulations || saveFigures {
					for _, set := range sets {
						paths, err := env.writeComparison(outputDir, set.prefix, "Data vs. "+set.prefix, trials, set.trials, saveFigures)
						if err != nil {
							return err
						}
						outputs = append(outputs, paths...)
					}
				}
			}

			run, scores, bins := fitRun("fit", res, fixations)
			run.Best = &best
			summary := newFitSummary(env.seed, res)
			summary.Optimized = optimum
			summary.RunID = env.saveRun(cmd, run, scores, bins)
			summary.Outputs = outputs
			return env.report(summary)
		},
	}

	cmd.Flags().String("model", string(models.ModelADDM), "Model to fit: ddm or addm")
	addDataFlags(cmd)
	addTrialSetFlag(cmd)
	cmd.Flags().Int("num-trials", 0, "Trials per subject to fit, drawn at random (0 uses all)")
	addRangeFlags(cmd, true)
	cmd.Flags().String("method", methodGrid, "Estimation method: grid, or optimize to refine the grid argmax with Nelder-Mead")
	cmd.Flags().Int("optimize-restarts", estimate.DefaultOptimizeOptions().Restarts, "Extra Nelder-Mead runs from perturbed starting points (with --method optimize)")
	cmd.Flags().String("priors-file-name", "", "CSV with d,sigma[,theta],prior (default uniform, i.e. maximum likelihood)")
	cmd.Flags().Int("num-simulations", 0, "Trials per condition simulated with the best parameters (0 skips)")
	cmd.Flags().Bool("split-odd-even", false, "Fit odd trial ids and build fixation distributions from even ones")
	cmd.Flags().Int("posterior-samples", 0, "Parameter sets drawn from the posterior for simulation (requires --num-simulations)")
	addHistogramFlags(cmd, true)
	addDelayFlags(cmd)
	cmd.Flags().Bool("save-simulations", false, "Write simulated trials and RT histograms to the output directory")
	cmd.Flags().Bool("save-figures", false, "Write RT histogram charts to the output directory")
	cmd.Flags().Bool("save-scores", false, "Write the score of every grid point to the output directory")
	cmd.Flags().String("output-dir", ".", "Directory for output files")

	return cmd
}

const (
	methodGrid     = "grid"
	methodOptimize = "optimize"
)

// optimize refines start by maximizing the likelihood over continuous
// parameters.
func (e *runEnv) optimize(ctx context.Context, kind models.ModelKind, trials []models.Trial, start models.ParameterSet, restarts int) (*estimate.Optimum, error) {
	model, err := e.likelihoodModel(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create likelihood model: %w", err)
	}
	est := &estimate.Estimator{Model: model, NumThreads: e.numThreads}
	est.SetLogger(e.logger, e.events)

	opts := estimate.DefaultOptimizeOptions()
	opts.Restarts = restarts
	opts.Seed = randutil.Derive(e.seed, streamOptimize)
	e.logger.Info("starting likelihood optimization", "model", kind, "start", start.Format(kind), "restarts", restarts)
	opt, err := est.Optimize(ctx, trials, start, opts)
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}
	return opt, nil
}

// simulatePosterior draws n parameter sets from the grid posterior and
// simulates conds with each, splitting the per-condition trial count
// between the draws.
func (e *runEnv) simulatePosterior(cmd *cobra.Command, res *estimate.Result, conds []models.TrialCondition, fixations *fixation.Data, n int) ([]models.Trial, error) {
	draws, err := res.SamplePosterior(randutil.New(e.seed, streamPosterior), n)
	if err != nil {
		return nil, fmt.Errorf("failed to sample posterior: %w", err)
	}

	perDraw := make([]models.TrialCondition, len(conds))
	for i, c := range conds {
		perDraw[i] = c
		perDraw[i].NumTrials = max(1, c.NumTrials/n)
	}

	var out []models.Trial
	for i, p := range draws {
		e.logger.Debug("simulating posterior draw", "draw", i, "params", p.Format(res.Kind))
		trials, err := e.simulate(cmd.Context(), res.Kind, p, perDraw, fixations, randutil.Derive(e.seed, streamPosterior, i))
		if err != nil {
			return nil, fmt.Errorf("failed to simulate posterior draw %d: %w", i, err)
		}
		out = append(out, trials...)
	}
	return out, nil
}

// subsample keeps at most n randomly chosen trials per subject, in their
// original order.
func subsample(ds *models.Dataset, n int, rng *rand.Rand) *models.Dataset {
	bySubject := make(map[string][]models.Trial)
	for _, s := range ds.Subjects() {
		trials := ds.Trials(s)
		if len(trials) <= n {
			bySubject[s] = trials
			continue
		}
		idx := rng.Perm(len(trials))[:n]
		slices.Sort(idx)
		kept := make([]models.Trial, n)
		for i, j := range idx {
			kept[i] = trials[j]
		}
		bySubject[s] = kept
	}
	return models.NewDataset(bySubject)
}
