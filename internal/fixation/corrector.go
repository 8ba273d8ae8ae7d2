package fixation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/manvincent/aDDM-Toolbox/internal/addm"
	"github.com/manvincent/aDDM-Toolbox/internal/logging"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
)

// IterationStats reports one correction pass. Pass 0 uses the observed last
// fixations; later passes use simulated trials.
type IterationStats struct {
	Iteration       int           `json:"iteration"`
	SimulatedTrials int           `json:"simulated_trials"`
	LastFixations   int           `json:"last_fixations"`
	Reweight        ReweightStats `json:"reweight"`
}

// Corrector approximates the uncensored fixation distributions by a bounded
// fixed-point iteration: each pass simulates trials under the current
// estimate, measures how often a fixation of each duration ends a trial,
// and reweights the empirical distributions by that rate.
type Corrector struct {
	Params                  models.ParameterSet
	Model                   addm.Options
	NumIterations           int
	SimulationsPerCondition int
	NumThreads              int
	Seed                    uint64

	logger *slog.Logger
	events *logging.EventLogger
}

// SetLogger sets the operational logger and event trace.
func (c *Corrector) SetLogger(logger *slog.Logger, events *logging.EventLogger) {
	c.logger = logger
	c.events = events
}

// Correct returns data with corrected item-fixation distributions and the
// per-pass statistics. data is not modified.
func (c *Corrector) Correct(ctx context.Context, data *Data, conds []models.TrialCondition) (*Data, []IterationStats, error) {
	if c.NumIterations < 0 {
		return nil, nil, fmt.Errorf("number of iterations must be non-negative, got %d", c.NumIterations)
	}
	if c.NumIterations > 0 && c.SimulationsPerCondition <= 0 {
		return nil, nil, fmt.Errorf("simulations per condition must be positive, got %d", c.SimulationsPerCondition)
	}
	if err := c.Params.Validate(models.ModelADDM); err != nil {
		return nil, nil, fmt.Errorf("invalid correction parameters: %w", err)
	}

	var stats []IterationStats

	// Pass 0: observed last fixations against all observed fixations.
	total := sumInto(data.empirical, data.observedLast)
	corrected, rs := ReweightAll(data.empirical, data.observedLast, total)
	st := IterationStats{Iteration: 0, LastFixations: int(countAll(data.observedLast)), Reweight: rs}
	stats = append(stats, st)
	c.report(st)
	current := data.withFixations(corrected)

	perCond := make([]models.TrialCondition, len(conds))
	for i, cond := range conds {
		perCond[i] = models.TrialCondition{ValueLeft: cond.ValueLeft, ValueRight: cond.ValueRight, NumTrials: c.SimulationsPerCondition}
	}

	for iter := 1; iter <= c.NumIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		sim, err := addm.NewSimulator(c.Model, current)
		if err != nil {
			return nil, nil, err
		}
		sim.SetLogger(c.logger)
		trials, err := sim.SimulateBatch(ctx, c.Params, perCond, randutil.Derive(c.Seed, iter), c.NumThreads)
		if err != nil {
			return nil, nil, fmt.Errorf("correction iteration %d: %w", iter, err)
		}

		last, nonLast := c.countSimulated(data.opts, trials)
		corrected, rs := ReweightAll(data.empirical, last, sumInto(nonLast, last))
		st := IterationStats{Iteration: iter, SimulatedTrials: len(trials), LastFixations: int(countAll(last)), Reweight: rs}
		stats = append(stats, st)
		c.report(st)
		current = data.withFixations(corrected)
	}
	return current, stats, nil
}

// countSimulated bins simulated item fixations. Last fixations are binned by
// their uninterrupted duration.
func (c *Corrector) countSimulated(opts Options, trials []models.Trial) (last, nonLast map[Key]*Distribution) {
	binning := opts.Binning()
	last = make(map[Key]*Distribution)
	nonLast = make(map[Key]*Distribution)
	add := func(m map[Key]*Distribution, k Key, dur int) {
		d, ok := m[k]
		if !ok {
			d = NewDistribution(binning)
			m[k] = d
		}
		d.Add(dur)
	}

	for _, t := range trials {
		lastIdx := t.LastItemFixation()
		fixNumber := 0
		for i, f := range t.Fixations {
			if !f.Item.IsItem() {
				continue
			}
			fixNumber++
			key := Key{FixNumber: opts.pool(fixNumber), ValueDiff: t.FixatedValueDiff(f.Item)}
			if i == lastIdx {
				if t.UninterruptedLastFixTime >= opts.TimeStep {
					add(last, key, t.UninterruptedLastFixTime)
				}
				continue
			}
			if opts.keep(f.Duration) {
				add(nonLast, key, f.Duration)
			}
		}
	}
	return last, nonLast
}

func (c *Corrector) report(st IterationStats) {
	if c.logger != nil {
		c.logger.Info("fixation correction pass",
			"iteration", st.Iteration,
			"simulated_trials", st.SimulatedTrials,
			"last_fixations", st.LastFixations)
		if st.Reweight.ZeroObservationBins > 0 {
			c.logger.Debug("bins without observations left unadjusted",
				"iteration", st.Iteration,
				"bins", st.Reweight.ZeroObservationBins,
				"of", st.Reweight.Bins)
		}
	}
	c.events.Log(logging.EventCorrectionIteration, map[string]any{
		"iteration":        st.Iteration,
		"simulated_trials": st.SimulatedTrials,
		"last_fixations":   st.LastFixations,
	})
	if st.Reweight.ZeroObservationBins > 0 {
		c.events.Log(logging.EventZeroObservationBins, map[string]any{
			"iteration": st.Iteration,
			"bins":      st.Reweight.ZeroObservationBins,
			"total":     st.Reweight.Bins,
		})
	}
}

func countAll(m map[Key]*Distribution) float64 {
	n := 0.0
	for _, d := range m {
		n += d.Total()
	}
	return n
}
