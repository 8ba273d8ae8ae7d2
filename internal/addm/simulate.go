package addm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
)

// FixationSampler supplies the attention process for simulated trials.
type FixationSampler interface {
	// ProbLeftFirst is the probability that the first item fixation is on
	// the left item.
	ProbLeftFirst() float64
	// SampleLatency draws the delay before the first item fixation (ms).
	SampleLatency(rng *rand.Rand) int
	// SampleTransition draws the gap between two item fixations (ms).
	SampleTransition(rng *rand.Rand) int
	// SampleFixation draws an item fixation duration (ms) for the 1-based
	// fixation number and the fixated-minus-unfixated value difference.
	SampleFixation(rng *rand.Rand, fixNumber int, valueDiff float64) (int, error)
}

// Simulator generates aDDM trials.
type Simulator struct {
	opts      Options
	fixations FixationSampler
	logger    *slog.Logger
}

// NewSimulator returns a simulator drawing attention from fixations.
func NewSimulator(opts Options, fixations FixationSampler) (*Simulator, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid addm options: %w", err)
	}
	if fixations == nil {
		return nil, fmt.Errorf("addm simulator needs a fixation sampler")
	}
	return &Simulator{opts: opts, fixations: fixations}, nil
}

// SetLogger sets the logger for retry diagnostics.
func (s *Simulator) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SimulateTrial runs one trial. A crossing during a transition aborts the
// attempt and the trial is resampled from scratch; after MaxRestarts aborted
// attempts the trial diverges.
func (s *Simulator) SimulateTrial(rng *rand.Rand, p models.ParameterSet, valueLeft, valueRight float64) (models.Trial, error) {
	for attempt := 0; attempt < s.opts.MaxRestarts; attempt++ {
		t, ok, err := s.attempt(rng, p, valueLeft, valueRight)
		if err != nil {
			return models.Trial{}, err
		}
		if ok {
			return t, nil
		}
	}
	return models.Trial{}, &ddm.DivergenceError{Attempts: s.opts.MaxRestarts}
}

// walk advances the RDV by n steps with the given mean. It returns the number
// of steps taken and the crossed barrier's choice, or zero if none.
func (s *Simulator) walk(rng *rand.Rand, rdv *float64, n int, mean, sigma float64) (int, models.Choice) {
	for k := 0; k < n; k++ {
		*rdv += mean + sigma*rng.NormFloat64()
		if *rdv >= s.opts.Barrier {
			return k + 1, models.ChoiceLeft
		}
		if *rdv <= -s.opts.Barrier {
			return k + 1, models.ChoiceRight
		}
	}
	return n, 0
}

func (s *Simulator) attempt(rng *rand.Rand, p models.ParameterSet, valueLeft, valueRight float64) (models.Trial, bool, error) {
	ts := s.opts.TimeStep
	trial := models.Trial{ValueLeft: valueLeft, ValueRight: valueRight}
	rdv := 0.0
	steps := 0
	budget := func(n int) error {
		steps += n
		if steps > s.opts.MaxSteps {
			return &ddm.DivergenceError{Steps: steps}
		}
		return nil
	}

	// A trial must end on an item fixation, so a crossing during the latency
	// resets the RDV and draws a new latency.
	for {
		latency := floorTo(s.fixations.SampleLatency(rng), ts)
		taken, crossed := s.walk(rng, &rdv, latency/ts, 0, p.Sigma)
		if err := budget(max(taken, 1)); err != nil {
			return models.Trial{}, false, err
		}
		if crossed == 0 {
			trial.Fixations = append(trial.Fixations, models.Fixation{Item: models.FixTransition, Duration: latency})
			trial.RT += latency
			break
		}
		rdv = 0
	}

	item := models.FixRight
	if rng.Float64() < s.fixations.ProbLeftFirst() {
		item = models.FixLeft
	}
	for fixNumber := 1; ; fixNumber++ {
		dur, err := s.fixations.SampleFixation(rng, fixNumber, trial.FixatedValueDiff(item))
		if err != nil {
			return models.Trial{}, false, fmt.Errorf("failed to sample fixation %d: %w", fixNumber, err)
		}
		dur = floorTo(dur, ts)
		// The fixated item only drives the drift after the visual delay.
		delay := min(floorTo(s.opts.VisualDelay, ts), dur)
		taken, crossed := s.walk(rng, &rdv, delay/ts, 0, p.Sigma)
		elapsed := taken * ts
		if crossed == 0 {
			taken, crossed = s.walk(rng, &rdv, (dur-delay)/ts, drift(p, item, valueLeft, valueRight), p.Sigma)
			elapsed = delay + taken*ts
		}
		if err := budget(max(elapsed/ts, 1)); err != nil {
			return models.Trial{}, false, err
		}
		if crossed != 0 {
			elapsed += s.opts.MotorDelay
			trial.Fixations = append(trial.Fixations, models.Fixation{Item: item, Duration: elapsed})
			trial.RT += elapsed
			trial.Choice = crossed
			trial.UninterruptedLastFixTime = dur
			return trial, true, nil
		}
		trial.Fixations = append(trial.Fixations, models.Fixation{Item: item, Duration: dur})
		trial.RT += dur

		transition := floorTo(s.fixations.SampleTransition(rng), ts)
		taken, crossed = s.walk(rng, &rdv, transition/ts, 0, p.Sigma)
		if err := budget(taken); err != nil {
			return models.Trial{}, false, err
		}
		if crossed != 0 {
			return models.Trial{}, false, nil
		}
		trial.Fixations = append(trial.Fixations, models.Fixation{Item: models.FixTransition, Duration: transition})
		trial.RT += transition
		item = item.Other()
	}
}

// SimulateBatch simulates every condition in order with per-trial streams
// derived from (seed, condition, trial, attempt).
func (s *Simulator) SimulateBatch(ctx context.Context, p models.ParameterSet, conds []models.TrialCondition, seed uint64, numThreads int) ([]models.Trial, error) {
	return ddm.RunBatch(ctx, conds, numThreads, s.opts.MaxAttempts, s.logger,
		func(c, i, attempt int, cond models.TrialCondition) (models.Trial, error) {
			return s.SimulateTrial(randutil.New(seed, c, i, attempt), p, cond.ValueLeft, cond.ValueRight)
		})
}
