package addm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
)

// fixedSampler returns constant durations, jittered by up to jitter ms.
type fixedSampler struct {
	probLeft   float64
	latency    int
	transition int
	fixation   int
	jitter     int
}

func (f fixedSampler) ProbLeftFirst() float64 { return f.probLeft }

func (f fixedSampler) SampleLatency(rng *rand.Rand) int { return f.latency + f.noise(rng) }

func (f fixedSampler) SampleTransition(rng *rand.Rand) int { return f.transition + f.noise(rng) }

func (f fixedSampler) SampleFixation(rng *rand.Rand, fixNumber int, valueDiff float64) (int, error) {
	return f.fixation + f.noise(rng), nil
}

func (f fixedSampler) noise(rng *rand.Rand) int {
	if f.jitter == 0 {
		return 0
	}
	return rng.IntN(f.jitter)
}

type failingSampler struct{ fixedSampler }

func (failingSampler) SampleFixation(*rand.Rand, int, float64) (int, error) {
	return 0, errors.New("no fixations for key")
}

var testSampler = fixedSampler{probLeft: 0.5, latency: 200, transition: 30, fixation: 400, jitter: 100}

func newTestSimulator(t *testing.T, opts Options, sampler FixationSampler) *Simulator {
	t.Helper()
	s, err := NewSimulator(opts, sampler)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

func TestSimulateTrial_FixationSchedule(t *testing.T) {
	s := newTestSimulator(t, DefaultOptions(), testSampler)
	p := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}

	for i := 0; i < 50; i++ {
		trial, err := s.SimulateTrial(randutil.New(3, i), p, 3, 1)
		if err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
		if !trial.Choice.Valid() {
			t.Fatalf("trial %d: invalid choice %v", i, trial.Choice)
		}
		if trial.Fixations[0].Item != models.FixTransition {
			t.Errorf("trial %d: first fixation should be the latency", i)
		}

		sum := 0
		var prev models.FixItem
		for j, f := range trial.Fixations {
			sum += f.Duration
			if f.Duration%10 != 0 {
				t.Errorf("trial %d fixation %d: duration %d not a multiple of the time step", i, j, f.Duration)
			}
			if f.Item.IsItem() {
				if prev.IsItem() && prev == f.Item {
					t.Errorf("trial %d: items do not alternate", i)
				}
				prev = f.Item
			}
		}
		if sum != trial.RT {
			t.Errorf("trial %d: fixations sum to %d, RT is %d", i, sum, trial.RT)
		}

		last := trial.Fixations[len(trial.Fixations)-1]
		if !last.Item.IsItem() {
			t.Errorf("trial %d: trial ended on a transition", i)
		}
		if last.Duration > trial.UninterruptedLastFixTime {
			t.Errorf("trial %d: truncated duration %d exceeds natural duration %d", i, last.Duration, trial.UninterruptedLastFixTime)
		}
	}
}

func TestSimulateTrial_Deterministic(t *testing.T) {
	s := newTestSimulator(t, DefaultOptions(), testSampler)
	p := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}

	a, errA := s.SimulateTrial(randutil.New(9, 1), p, 2, 1)
	b, errB := s.SimulateTrial(randutil.New(9, 1), p, 2, 1)
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v, %v", errA, errB)
	}
	if a.RT != b.RT || a.Choice != b.Choice || len(a.Fixations) != len(b.Fixations) {
		t.Fatalf("same stream produced different trials: %+v vs %+v", a, b)
	}
}

func TestSimulateTrial_LeftFirst(t *testing.T) {
	sampler := testSampler
	sampler.probLeft = 1
	s := newTestSimulator(t, DefaultOptions(), sampler)

	for i := 0; i < 10; i++ {
		trial, err := s.SimulateTrial(randutil.New(5, i), models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}, 1, 2)
		if err != nil {
			t.Fatalf("SimulateTrial: %v", err)
		}
		if trial.Fixations[1].Item != models.FixLeft {
			t.Errorf("trial %d: first item fixation is %v", i, trial.Fixations[1].Item)
		}
	}
}

func TestSimulateTrial_Divergence(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxSteps = 50
	s := newTestSimulator(t, opts, testSampler)

	_, err := s.SimulateTrial(randutil.New(1), models.ParameterSet{D: 0, Sigma: 1e-6, Theta: 1}, 1, 1)
	if !errors.Is(err, ddm.ErrSimulationDivergence) {
		t.Fatalf("expected ErrSimulationDivergence, got %v", err)
	}
}

func TestSimulateTrial_SamplerError(t *testing.T) {
	s := newTestSimulator(t, DefaultOptions(), failingSampler{testSampler})
	if _, err := s.SimulateTrial(randutil.New(1), models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}, 1, 2); err == nil {
		t.Fatal("expected sampler error to propagate")
	}
}

func TestSimulateBatch_Reproducible(t *testing.T) {
	s := newTestSimulator(t, DefaultOptions(), testSampler)
	p := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}
	conds := models.DefaultTrialConditions(3)

	a, err := s.SimulateBatch(context.Background(), p, conds, 21, 1)
	if err != nil {
		t.Fatalf("SimulateBatch: %v", err)
	}
	b, err := s.SimulateBatch(context.Background(), p, conds, 21, 4)
	if err != nil {
		t.Fatalf("SimulateBatch: %v", err)
	}
	for i := range a {
		if a[i].RT != b[i].RT || a[i].Choice != b[i].Choice || a[i].UninterruptedLastFixTime != b[i].UninterruptedLastFixTime {
			t.Fatalf("trial %d differs between thread counts", i)
		}
	}
}

func observedTrials(t *testing.T, p models.ParameterSet, n int) []models.Trial {
	t.Helper()
	s := newTestSimulator(t, DefaultOptions(), testSampler)
	conds := []models.TrialCondition{{ValueLeft: 3, ValueRight: 1, NumTrials: n}}
	trials, err := s.SimulateBatch(context.Background(), p, conds, 77, 1)
	if err != nil {
		t.Fatalf("SimulateBatch: %v", err)
	}
	return trials
}

func TestModel_MonteCarloLikelihood(t *testing.T) {
	p := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}
	trials := observedTrials(t, p, 10)

	opts := DefaultOptions()
	opts.Seed = 4
	opts.NumSimulations = 200
	m, err := NewModel(opts)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	a, err := m.Likelihoods(context.Background(), trials, p, 0)
	if err != nil {
		t.Fatalf("Likelihoods: %v", err)
	}
	b, err := m.Likelihoods(context.Background(), trials, p, 0)
	if err != nil {
		t.Fatalf("Likelihoods: %v", err)
	}
	positive := 0
	for i := range a {
		if a[i] < 0 || a[i] > 1 {
			t.Errorf("trial %d: likelihood %v outside [0, 1]", i, a[i])
		}
		if a[i] != b[i] {
			t.Errorf("trial %d: same stream gave %v and %v", i, a[i], b[i])
		}
		if a[i] > 0 {
			positive++
		}
	}
	if positive == 0 {
		t.Error("no trial had a positive likelihood under its generating parameters")
	}
}

func TestModel_StateSpaceLikelihood(t *testing.T) {
	p := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}
	trials := observedTrials(t, p, 5)

	opts := DefaultOptions()
	opts.Method = MethodStateSpace
	m, err := NewModel(opts)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	for i, tr := range trials {
		l, err := m.Likelihood(tr, p)
		if err != nil {
			t.Fatalf("Likelihood: %v", err)
		}
		if l <= 0 || l > 1 {
			t.Errorf("trial %d: likelihood %v outside (0, 1]", i, l)
		}
	}

	empty, err := m.Likelihood(models.Trial{Choice: models.ChoiceLeft, RT: 100}, p)
	if err != nil {
		t.Fatalf("Likelihood: %v", err)
	}
	if empty != 0 {
		t.Errorf("trial without fixations: likelihood %v, want 0", empty)
	}
}

// RTs past the histogram cap are still scored by the likelihood.
func TestModel_ScoresRTBeyondHistogramCap(t *testing.T) {
	rt := constants.DefaultMaxRT + 1000
	tests := []struct {
		name   string
		method Method
		params models.ParameterSet
		trial  models.Trial
	}{
		{
			// Mean crossing time is close to rt.
			name:   "montecarlo",
			method: MethodMonteCarlo,
			params: models.ParameterSet{D: 0.0011, Sigma: 0.01, Theta: 1},
			trial: models.Trial{ValueLeft: 1, ValueRight: 0, Choice: models.ChoiceLeft, RT: rt,
				Fixations: []models.Fixation{{Item: models.FixLeft, Duration: rt}}},
		},
		{
			name:   "statespace",
			method: MethodStateSpace,
			params: models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5},
			trial: models.Trial{ValueLeft: 2, ValueRight: 2, Choice: models.ChoiceLeft, RT: rt,
				Fixations: []models.Fixation{{Item: models.FixLeft, Duration: rt / 2}, {Item: models.FixRight, Duration: rt / 2}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Method = tt.method
			opts.NumSimulations = 2000
			opts.Seed = 9
			m, err := NewModel(opts)
			if err != nil {
				t.Fatalf("NewModel: %v", err)
			}
			l, err := m.Likelihood(tt.trial, tt.params)
			if err != nil {
				t.Fatalf("Likelihood: %v", err)
			}
			if !(l > 0) || math.Log(l) <= constants.LogLikelihoodFloor {
				t.Errorf("likelihood %v for RT %d is at the floor", l, tt.trial.RT)
			}
		})
	}
}

func TestModel_ScheduleBeyondStepBudgetScoresZero(t *testing.T) {
	huge := 1_000_000_000_000
	trial := models.Trial{ValueLeft: 3, ValueRight: 1, Choice: models.ChoiceLeft, RT: huge,
		Fixations: []models.Fixation{{Item: models.FixLeft, Duration: huge}}}
	p := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}

	for _, method := range []Method{MethodMonteCarlo, MethodStateSpace} {
		t.Run(string(method), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Method = method
			m, err := NewModel(opts)
			if err != nil {
				t.Fatalf("NewModel: %v", err)
			}
			l, err := m.Likelihood(trial, p)
			if err != nil {
				t.Fatalf("Likelihood: %v", err)
			}
			if l != 0 {
				t.Errorf("likelihood = %v, want 0", l)
			}
		})
	}
}

func TestModel_CancelledContext(t *testing.T) {
	m, err := NewModel(DefaultOptions())
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Likelihoods(ctx, []models.Trial{{Choice: models.ChoiceLeft, RT: 100}}, models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOptions_Validate(t *testing.T) {
	opts := DefaultOptions()
	opts.NumSimulations = 0
	if err := opts.Validate(); err == nil {
		t.Error("expected error for zero simulations")
	}
	opts = DefaultOptions()
	opts.Method = "exact"
	if err := opts.Validate(); err == nil {
		t.Error("expected error for unknown method")
	}
	opts = DefaultOptions()
	opts.MotorDelay = -10
	if err := opts.Validate(); err == nil {
		t.Error("expected error for a negative motor delay")
	}
}

func TestOptions_Schedule(t *testing.T) {
	trial := models.Trial{Fixations: []models.Fixation{
		{Item: models.FixTransition, Duration: 200},
		{Item: models.FixLeft, Duration: 400},
		{Item: models.FixTransition, Duration: 30},
		{Item: models.FixRight, Duration: 250},
	}}
	tests := []struct {
		name          string
		visual, motor int
		want          []models.Fixation
	}{
		{"no delays", 0, 0, trial.Fixations},
		{"visual and motor", 100, 50, []models.Fixation{
			{Item: models.FixTransition, Duration: 200},
			{Item: models.FixTransition, Duration: 100},
			{Item: models.FixLeft, Duration: 300},
			{Item: models.FixTransition, Duration: 30},
			{Item: models.FixTransition, Duration: 100},
			{Item: models.FixRight, Duration: 100},
		}},
		{"motor only", 0, 300, []models.Fixation{
			{Item: models.FixTransition, Duration: 200},
			{Item: models.FixLeft, Duration: 400},
			{Item: models.FixTransition, Duration: 30},
			{Item: models.FixRight, Duration: 0},
		}},
		{"visual longer than fixation", 500, 0, []models.Fixation{
			{Item: models.FixTransition, Duration: 200},
			{Item: models.FixTransition, Duration: 400},
			{Item: models.FixLeft, Duration: 0},
			{Item: models.FixTransition, Duration: 30},
			{Item: models.FixTransition, Duration: 250},
			{Item: models.FixRight, Duration: 0},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.VisualDelay, opts.MotorDelay = tt.visual, tt.motor
			got := opts.schedule(trial)
			if len(got) != len(tt.want) {
				t.Fatalf("schedule = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
	if trial.Fixations[3].Duration != 250 {
		t.Error("schedule modified the trial's fixations")
	}
}

// With almost no noise the walk is deterministic: drift 0.0192 per step
// while either item is fixated, so the barrier at 1 is crossed on the second
// (right) fixation.
var delaySampler = fixedSampler{probLeft: 1, latency: 200, transition: 30, fixation: 400}

func delayTrial(t *testing.T, visual, motor int) models.Trial {
	t.Helper()
	opts := DefaultOptions()
	opts.VisualDelay, opts.MotorDelay = visual, motor
	s := newTestSimulator(t, opts, delaySampler)
	trial, err := s.SimulateTrial(randutil.New(1), models.ParameterSet{D: 0.0096, Sigma: 1e-6, Theta: 1}, 3, 1)
	if err != nil {
		t.Fatalf("SimulateTrial: %v", err)
	}
	return trial
}

func TestSimulateTrial_VisualAndMotorDelay(t *testing.T) {
	tests := []struct {
		name          string
		visual, motor int
		wantRT        int
		wantLast      int
	}{
		{"no delays", 0, 0, 760, 130},
		{"visual delay", 100, 0, 960, 330},
		{"visual and motor delay", 100, 50, 1010, 380},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trial := delayTrial(t, tt.visual, tt.motor)
			if trial.Choice != models.ChoiceLeft {
				t.Fatalf("choice = %v, want left", trial.Choice)
			}
			if trial.RT != tt.wantRT {
				t.Errorf("RT = %d, want %d", trial.RT, tt.wantRT)
			}
			last := trial.Fixations[len(trial.Fixations)-1]
			if last.Item != models.FixRight || last.Duration != tt.wantLast {
				t.Errorf("last fixation = %+v, want right for %d ms", last, tt.wantLast)
			}
			sum := 0
			for _, f := range trial.Fixations {
				sum += f.Duration
			}
			if sum != trial.RT {
				t.Errorf("fixations sum to %d, RT is %d", sum, trial.RT)
			}
		})
	}
}

func TestModel_MonteCarloFollowsDelays(t *testing.T) {
	trial := delayTrial(t, 100, 50)
	p := models.ParameterSet{D: 0.0096, Sigma: 1e-6, Theta: 1}

	score := func(visual, motor int) float64 {
		opts := DefaultOptions()
		opts.VisualDelay, opts.MotorDelay = visual, motor
		opts.NumSimulations = 50
		m, err := NewModel(opts)
		if err != nil {
			t.Fatalf("NewModel: %v", err)
		}
		l, err := m.Likelihood(trial, p)
		if err != nil {
			t.Fatalf("Likelihood: %v", err)
		}
		return l
	}
	if l := score(100, 50); l != 1 {
		t.Errorf("likelihood under the generating delays = %v, want 1", l)
	}
	if l := score(0, 0); l != 0 {
		t.Errorf("likelihood without delays = %v, want 0", l)
	}
}

func TestModel_StateSpaceWithDelays(t *testing.T) {
	p := models.ParameterSet{D: 0.005, Sigma: 0.07, Theta: 0.5}
	opts := DefaultOptions()
	opts.VisualDelay, opts.MotorDelay = 50, 100
	s := newTestSimulator(t, opts, testSampler)
	trials, err := s.SimulateBatch(context.Background(), p,
		[]models.TrialCondition{{ValueLeft: 3, ValueRight: 1, NumTrials: 5}}, 12, 1)
	if err != nil {
		t.Fatalf("SimulateBatch: %v", err)
	}

	opts.Method = MethodStateSpace
	m, err := NewModel(opts)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	for i, tr := range trials {
		l, err := m.Likelihood(tr, p)
		if err != nil {
			t.Fatalf("Likelihood: %v", err)
		}
		if l <= 0 || l > 1 {
			t.Errorf("trial %d: likelihood %v outside (0, 1]", i, l)
		}
	}
}
