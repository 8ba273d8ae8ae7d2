package ddm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
	"golang.org/x/sync/errgroup"
)

// Simulator generates DDM trials.
type Simulator struct {
	opts   Options
	logger *slog.Logger
}

// NewSimulator returns a simulator for opts.
func NewSimulator(opts Options) (*Simulator, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ddm options: %w", err)
	}
	return &Simulator{opts: opts}, nil
}

// SetLogger sets the logger for retry diagnostics.
func (s *Simulator) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SimulateTrial runs one random walk for the value pair. The trial's choice
// is the barrier crossed; its RT is the number of steps times the time step.
func (s *Simulator) SimulateTrial(rng *rand.Rand, p models.ParameterSet, valueLeft, valueRight float64) (models.Trial, error) {
	mean := p.D * (valueLeft - valueRight)
	rdv := 0.0
	for step := 1; step <= s.opts.MaxSteps; step++ {
		rdv += mean + p.Sigma*rng.NormFloat64()
		if rdv >= s.opts.Barrier {
			return models.Trial{ValueLeft: valueLeft, ValueRight: valueRight, Choice: models.ChoiceLeft, RT: step * s.opts.TimeStep}, nil
		}
		if rdv <= -s.opts.Barrier {
			return models.Trial{ValueLeft: valueLeft, ValueRight: valueRight, Choice: models.ChoiceRight, RT: step * s.opts.TimeStep}, nil
		}
	}
	return models.Trial{}, &DivergenceError{Steps: s.opts.MaxSteps}
}

// SimulateBatch simulates every condition in order. Trial i of condition c
// draws from the stream (seed, c, i, attempt), so the output depends only on
// the seed and never on scheduling. Trial IDs number the batch from zero.
func (s *Simulator) SimulateBatch(ctx context.Context, p models.ParameterSet, conds []models.TrialCondition, seed uint64, numThreads int) ([]models.Trial, error) {
	return RunBatch(ctx, conds, numThreads, s.opts.MaxAttempts, s.logger,
		func(c, i, attempt int, cond models.TrialCondition) (models.Trial, error) {
			return s.SimulateTrial(randutil.New(seed, c, i, attempt), p, cond.ValueLeft, cond.ValueRight)
		})
}

// TrialFunc simulates trial i of condition c on the given attempt.
type TrialFunc func(c, i, attempt int, cond models.TrialCondition) (models.Trial, error)

// RunBatch fans conditions out to a bounded worker pool and collects the
// trials in condition order. A trial that diverges is retried on the next
// attempt up to maxAttempts; other errors abort the batch.
func RunBatch(ctx context.Context, conds []models.TrialCondition, numThreads, maxAttempts int, logger *slog.Logger, simulate TrialFunc) ([]models.Trial, error) {
	offsets := make([]int, len(conds)+1)
	for c, cond := range conds {
		if cond.NumTrials < 0 {
			return nil, fmt.Errorf("condition %d: negative trial count %d", c, cond.NumTrials)
		}
		offsets[c+1] = offsets[c] + cond.NumTrials
	}
	out := make([]models.Trial, offsets[len(conds)])

	g, ctx := errgroup.WithContext(ctx)
	if numThreads > 0 {
		g.SetLimit(numThreads)
	}
	for c, cond := range conds {
		g.Go(func() error {
			for i := 0; i < cond.NumTrials; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				t, err := simulateWithRetry(c, i, maxAttempts, logger, cond, simulate)
				if err != nil {
					return fmt.Errorf("condition %d (%g, %g) trial %d: %w", c, cond.ValueLeft, cond.ValueRight, i, err)
				}
				t.ID = offsets[c] + i
				out[offsets[c]+i] = t
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func simulateWithRetry(c, i, maxAttempts int, logger *slog.Logger, cond models.TrialCondition, simulate TrialFunc) (models.Trial, error) {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var t models.Trial
		t, err = simulate(c, i, attempt, cond)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrSimulationDivergence) {
			return models.Trial{}, err
		}
		if logger != nil {
			logger.Debug("simulated trial diverged, retrying", "condition", c, "trial", i, "attempt", attempt, "error", err)
		}
	}
	return models.Trial{}, err
}
