package ddm

import (
	"context"
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// Model scores observed trials under the DDM.
type Model struct {
	opts Options
	grid *StateGrid
}

// NewModel returns a likelihood model for opts.
func NewModel(opts Options) (*Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ddm options: %w", err)
	}
	m := &Model{opts: opts}
	if opts.Method == MethodStateSpace {
		grid, err := NewStateGrid(opts.Barrier, opts.StateStep)
		if err != nil {
			return nil, err
		}
		m.grid = grid
	}
	return m, nil
}

// Kind reports the model kind.
func (m *Model) Kind() models.ModelKind {
	return models.ModelDDM
}

// Likelihood returns the probability of the trial's choice at its RT.
// Trials shorter than one time step or longer than MaxSteps steps have
// likelihood zero.
func (m *Model) Likelihood(trial models.Trial, p models.ParameterSet) (float64, error) {
	if err := p.Validate(models.ModelDDM); err != nil {
		return 0, err
	}
	steps := m.steps(trial)
	if steps == 0 || !trial.Choice.Valid() {
		return 0, nil
	}
	mean := p.D * trial.ValueDiff()
	if m.opts.Method == MethodAnalytic {
		return FirstPassageDensity(float64(steps), trial.Choice, mean, p.Sigma, m.opts.Barrier), nil
	}
	up, down := m.grid.Crossings(m.grid.Kernel(mean, p.Sigma), steps)
	return pick(trial.Choice, up[steps-1], down[steps-1]), nil
}

// Likelihoods scores a batch of trials. Under the state-space method, trials
// with the same drift share one propagation up to their longest RT. The
// stream argument is unused; DDM likelihoods are deterministic.
func (m *Model) Likelihoods(ctx context.Context, trials []models.Trial, p models.ParameterSet, stream int) ([]float64, error) {
	if err := p.Validate(models.ModelDDM); err != nil {
		return nil, err
	}
	out := make([]float64, len(trials))
	if m.opts.Method == MethodAnalytic {
		for i, t := range trials {
			l, err := m.Likelihood(t, p)
			if err != nil {
				return nil, err
			}
			out[i] = l
		}
		return out, nil
	}

	groups := make(map[float64][]int)
	var order []float64
	for i, t := range trials {
		mean := p.D * t.ValueDiff()
		if _, ok := groups[mean]; !ok {
			order = append(order, mean)
		}
		groups[mean] = append(groups[mean], i)
	}

	for _, mean := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := groups[mean]
		maxSteps := 0
		for _, i := range idx {
			maxSteps = max(maxSteps, m.steps(trials[i]))
		}
		if maxSteps == 0 {
			continue
		}
		up, down := m.grid.Crossings(m.grid.Kernel(mean, p.Sigma), maxSteps)
		for _, i := range idx {
			steps := m.steps(trials[i])
			if steps == 0 {
				continue
			}
			out[i] = pick(trials[i].Choice, up[steps-1], down[steps-1])
		}
	}
	return out, nil
}

// steps returns the number of whole time steps in the trial's RT, or zero
// when the RT is under one step or beyond the MaxSteps budget. The budget
// bounds the propagation buffers for corrupt RTs.
func (m *Model) steps(t models.Trial) int {
	steps := t.RT / m.opts.TimeStep
	if steps <= 0 || steps > m.opts.MaxSteps {
		return 0
	}
	return steps
}

func pick(choice models.Choice, up, down float64) float64 {
	switch choice {
	case models.ChoiceLeft:
		return up
	case models.ChoiceRight:
		return down
	default:
		return 0
	}
}
