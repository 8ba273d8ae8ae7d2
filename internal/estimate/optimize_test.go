package estimate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// peaked has its maximum likelihood at d=0.006, sigma=0.08, theta=0.3.
func peaked(p models.ParameterSet, _ models.Trial) float64 {
	zd := (p.D - 0.006) / 0.001
	zs := (p.Sigma - 0.08) / 0.01
	zt := (p.Theta - 0.3) / 0.1
	return math.Exp(-(zd*zd + zs*zs + zt*zt))
}

func within(got, want, rel float64) bool {
	return math.Abs(got-want) <= rel*math.Abs(want)
}

func TestOptimize_FindsPeak(t *testing.T) {
	est := &Estimator{Model: fakeModel{kind: models.ModelADDM, like: peaked}}
	start := models.ParameterSet{D: 0.005, Sigma: 0.095, Theta: 0.5}

	opt, err := est.Optimize(context.Background(), someTrials, start, DefaultOptimizeOptions())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !within(opt.Params.D, 0.006, 0.01) || !within(opt.Params.Sigma, 0.08, 0.01) || !within(opt.Params.Theta, 0.3, 0.01) {
		t.Errorf("optimum = %s, want d=0.006 sigma=0.08 theta=0.3", opt.Params.Format(models.ModelADDM))
	}
	if opt.LogLikelihood < opt.StartLogLik {
		t.Errorf("log-likelihood %v below start %v", opt.LogLikelihood, opt.StartLogLik)
	}
	if opt.Runs != 4 || opt.Evaluations == 0 {
		t.Errorf("runs=%d evaluations=%d", opt.Runs, opt.Evaluations)
	}
}

func TestOptimize_StartAtBoundsStaysValid(t *testing.T) {
	est := &Estimator{Model: fakeModel{kind: models.ModelADDM, like: peaked}}
	opt, err := est.Optimize(context.Background(), someTrials, models.ParameterSet{D: 0, Sigma: 0.08, Theta: 1}, DefaultOptimizeOptions())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if err := opt.Params.Validate(models.ModelADDM); err != nil {
		t.Errorf("optimum is invalid: %v", err)
	}
	if opt.LogLikelihood < opt.StartLogLik {
		t.Errorf("log-likelihood %v below start %v", opt.LogLikelihood, opt.StartLogLik)
	}
}

func TestOptimize_Errors(t *testing.T) {
	good := fakeModel{kind: models.ModelDDM, like: peaked}
	start := models.ParameterSet{D: 0.005, Sigma: 0.07}

	if _, err := (&Estimator{Model: good}).Optimize(context.Background(), nil, start, DefaultOptimizeOptions()); !errors.Is(err, ErrNoData) {
		t.Errorf("no trials: got %v, want ErrNoData", err)
	}
	if _, err := (&Estimator{Model: good}).Optimize(context.Background(), someTrials, models.ParameterSet{D: 0.005}, DefaultOptimizeOptions()); err == nil {
		t.Error("expected error for an invalid starting point")
	}

	failing := good
	failing.fail = func(p models.ParameterSet) error {
		if p.D > 0.0055 {
			return errors.New("boom")
		}
		return nil
	}
	if _, err := (&Estimator{Model: failing}).Optimize(context.Background(), someTrials, start, DefaultOptimizeOptions()); err == nil {
		t.Error("expected error when the likelihood fails during the search")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Estimator{Model: good}).Optimize(ctx, someTrials, start, DefaultOptimizeOptions()); err == nil {
		t.Error("expected error for a cancelled context")
	}
}

// Starting off the generating point, the search must move back towards it.
func TestOptimize_RecoversGeneratingParameters(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates 2400 trials")
	}
	opts := ddm.DefaultOptions()
	sim, err := ddm.NewSimulator(opts)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	trials, err := sim.SimulateBatch(context.Background(), models.ParameterSet{D: 0.006, Sigma: 0.08},
		models.DefaultTrialConditions(200), 77, 4)
	if err != nil {
		t.Fatalf("SimulateBatch: %v", err)
	}
	model, err := ddm.NewModel(opts)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	start := models.ParameterSet{D: 0.0045, Sigma: 0.1}
	opt, err := (&Estimator{Model: model}).Optimize(context.Background(), trials, start, OptimizeOptions{Restarts: 1, Jump: 0.1, MaxEvaluations: 300})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !within(opt.Params.D, 0.006, 0.15) || !within(opt.Params.Sigma, 0.08, 0.15) {
		t.Errorf("optimum = %s, want within 15%% of d=0.006 sigma=0.08", opt.Params.Format(models.ModelDDM))
	}
	if opt.LogLikelihood <= opt.StartLogLik {
		t.Errorf("log-likelihood %v did not improve on start %v", opt.LogLikelihood, opt.StartLogLik)
	}
}
