package addm

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
	"github.com/manvincent/aDDM-Toolbox/internal/histogram"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
)

// Model scores observed trials under the aDDM, using each trial's own
// fixation sequence as the attention schedule.
type Model struct {
	opts    Options
	grid    *ddm.StateGrid
	binning histogram.Binning
}

// NewModel returns a likelihood model for opts.
func NewModel(opts Options) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid addm options: %w", err)
	}
	m := &Model{opts: opts, binning: histogram.Binning{Step: opts.BinStep}}
	if opts.Method == MethodStateSpace {
		grid, err := ddm.NewStateGrid(opts.Barrier, opts.StateStep)
		if err != nil {
			return nil, err
		}
		m.grid = grid
	}
	return m, nil
}

// Kind reports the model kind.
func (m *Model) Kind() models.ModelKind {
	return models.ModelADDM
}

// Likelihood scores one trial on stream 0.
func (m *Model) Likelihood(trial models.Trial, p models.ParameterSet) (float64, error) {
	out, err := m.Likelihoods(context.Background(), []models.Trial{trial}, p, 0)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Likelihoods scores a batch of trials. Monte-Carlo paths for trial i draw
// from the stream (seed, stream, i), so a call is a pure function of its
// arguments and the configured seed.
func (m *Model) Likelihoods(ctx context.Context, trials []models.Trial, p models.ParameterSet, stream int) ([]float64, error) {
	if err := p.Validate(models.ModelADDM); err != nil {
		return nil, err
	}
	out := make([]float64, len(trials))
	kernels := make(map[float64]*ddm.Kernel)
	for i, t := range trials {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !t.Choice.Valid() || t.RT <= 0 {
			continue
		}
		if m.opts.Method == MethodStateSpace {
			out[i] = m.stateSpace(t, p, kernels)
		} else {
			out[i] = m.monteCarlo(randutil.New(m.opts.Seed, stream, i), t, p)
		}
	}
	return out, nil
}

// monteCarlo returns the fraction of simulated paths that reach the trial's
// choice within the trial's RT bin. Paths follow the observed schedule; the
// last fixation is extended until a crossing. A path crossing at step s
// responds at s*TimeStep+MotorDelay.
func (m *Model) monteCarlo(rng *rand.Rand, t models.Trial, p models.ParameterSet) float64 {
	ts, motor := m.opts.TimeStep, m.opts.MotorDelay
	target := m.binning.Unbounded(t.RT)
	if (m.binning.Lower(target)-motor)/ts > m.opts.MaxSteps {
		return 0
	}
	// No path crossing after this step can land in the target bin.
	limit := min((m.binning.Upper(target)-motor)/ts, m.opts.MaxSteps)

	type segment struct {
		steps int
		mean  float64
	}
	var schedule []segment
	last := 0.0
	for _, f := range m.opts.schedule(t) {
		mean := drift(p, f.Item, t.ValueLeft, t.ValueRight)
		schedule = append(schedule, segment{steps: f.Duration / ts, mean: mean})
		last = mean
	}

	matches := 0
	for n := 0; n < m.opts.NumSimulations; n++ {
		rdv, step := 0.0, 0
		seg, left := 0, 0
		if len(schedule) > 0 {
			left = schedule[0].steps
		}
		var choice models.Choice
		for step < limit {
			for seg < len(schedule) && left == 0 {
				seg++
				if seg < len(schedule) {
					left = schedule[seg].steps
				}
			}
			mean := last
			if seg < len(schedule) {
				mean = schedule[seg].mean
				left--
			}
			rdv += mean + p.Sigma*rng.NormFloat64()
			step++
			if rdv >= m.opts.Barrier {
				choice = models.ChoiceLeft
				break
			}
			if rdv <= -m.opts.Barrier {
				choice = models.ChoiceRight
				break
			}
		}
		if choice == t.Choice && m.binning.Unbounded(step*ts+motor) == target {
			matches++
		}
	}
	return float64(matches) / float64(m.opts.NumSimulations)
}

// stateSpace propagates mass along the trial's fixations and returns the
// crossing mass of the chosen barrier in the final step. Schedules longer
// than MaxSteps steps score zero.
func (m *Model) stateSpace(t models.Trial, p models.ParameterSet, kernels map[float64]*ddm.Kernel) float64 {
	ts := m.opts.TimeStep
	schedule := m.opts.schedule(t)
	total := 0
	for _, f := range schedule {
		total += f.Duration / ts
		if total > m.opts.MaxSteps {
			return 0
		}
	}
	pr := m.grid.Initial()
	next := make([]float64, len(pr))
	var up, down float64
	steps := 0
	for _, f := range schedule {
		mean := drift(p, f.Item, t.ValueLeft, t.ValueRight)
		k, ok := kernels[mean]
		if !ok {
			k = m.grid.Kernel(mean, p.Sigma)
			kernels[mean] = k
		}
		for s := 0; s < f.Duration/ts; s++ {
			up, down = k.Advance(pr, next)
			pr, next = next, pr
			steps++
		}
	}
	if steps == 0 {
		return 0
	}
	switch t.Choice {
	case models.ChoiceLeft:
		return up
	case models.ChoiceRight:
		return down
	}
	return 0
}
