package estimate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/ddm"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
)

// fakeModel scores each trial with like(p, trial); fail, if set, makes a
// parameter set error out.
type fakeModel struct {
	kind models.ModelKind
	like func(p models.ParameterSet, t models.Trial) float64
	fail func(p models.ParameterSet) error
}

func (m fakeModel) Kind() models.ModelKind { return m.kind }

func (m fakeModel) Likelihoods(ctx context.Context, trials []models.Trial, p models.ParameterSet, stream int) ([]float64, error) {
	if m.fail != nil {
		if err := m.fail(p); err != nil {
			return nil, err
		}
	}
	out := make([]float64, len(trials))
	for i, t := range trials {
		out[i] = m.like(p, t)
	}
	return out, nil
}

func mustGrid(t *testing.T, kind models.ModelKind, d, sigma, theta []float64) *Grid {
	t.Helper()
	g, err := NewGrid(kind, d, sigma, theta)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

var someTrials = []models.Trial{
	{ID: 0, Choice: models.ChoiceLeft, RT: 500},
	{ID: 1, Choice: models.ChoiceRight, RT: 700},
	{ID: 2, Choice: models.ChoiceLeft, RT: 900},
}

// Data generated at d=0.006, sigma=0.08 must be recovered exactly.
func TestFit_RecoversGeneratingParameters(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates 9600 trials")
	}
	opts := ddm.DefaultOptions()
	sim, err := ddm.NewSimulator(opts)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	trials, err := sim.SimulateBatch(context.Background(), models.ParameterSet{D: 0.006, Sigma: 0.08},
		models.DefaultTrialConditions(800), 2024, 4)
	if err != nil {
		t.Fatalf("SimulateBatch: %v", err)
	}

	model, err := ddm.NewModel(opts)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	grid := mustGrid(t, models.ModelDDM, []float64{0.005, 0.006, 0.007}, []float64{0.065, 0.08, 0.095}, nil)
	est := &Estimator{Model: model, NumThreads: 9}

	res, err := est.Fit(context.Background(), trials, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.BestParams.D != 0.006 || res.BestParams.Sigma != 0.08 {
		t.Errorf("best = %s, want d=0.006 sigma=0.08", res.BestParams.Format(models.ModelDDM))
	}
}

func TestFit_NoData(t *testing.T) {
	grid := mustGrid(t, models.ModelDDM, []float64{0.005}, []float64{0.07}, nil)
	est := &Estimator{Model: fakeModel{kind: models.ModelDDM}}

	res, err := est.Fit(context.Background(), nil, grid)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if res != nil {
		t.Errorf("expected no partial result, got %+v", res)
	}
}

func TestFit_EmptyGrid(t *testing.T) {
	grid := mustGrid(t, models.ModelADDM, []float64{0.005}, []float64{0.07}, nil)
	est := &Estimator{Model: fakeModel{kind: models.ModelADDM}}

	if _, err := est.Fit(context.Background(), someTrials, grid); !errors.Is(err, ErrEmptyGrid) {
		t.Fatalf("expected ErrEmptyGrid, got %v", err)
	}
}

func TestFit_TieBreakUsesEnumerationOrder(t *testing.T) {
	grid := mustGrid(t, models.ModelADDM, []float64{0.001, 0.002}, []float64{0.05}, []float64{0.3, 0.5})
	// Points 1 and 3 tie at the maximum.
	model := fakeModel{kind: models.ModelADDM, like: func(p models.ParameterSet, _ models.Trial) float64 {
		if p.Theta == 0.5 {
			return 0.4
		}
		return 0.1
	}}

	for _, threads := range []int{1, 4} {
		est := &Estimator{Model: model, NumThreads: threads}
		res, err := est.Fit(context.Background(), someTrials, grid)
		if err != nil {
			t.Fatalf("Fit: %v", err)
		}
		if res.Best != 1 {
			t.Errorf("threads=%d: best index = %d, want 1", threads, res.Best)
		}
		want := models.ParameterSet{D: 0.001, Sigma: 0.05, Theta: 0.5}
		if res.BestParams != want {
			t.Errorf("threads=%d: best = %v, want %v", threads, res.BestParams, want)
		}
	}
}

func TestFit_BestScoreDominates(t *testing.T) {
	grid := mustGrid(t, models.ModelDDM, []float64{0.002, 0.004, 0.006, 0.008}, []float64{0.05, 0.07, 0.09}, nil)
	model := fakeModel{kind: models.ModelDDM, like: func(p models.ParameterSet, tr models.Trial) float64 {
		return math.Exp(-math.Abs(p.D-0.006)*100 - math.Abs(p.Sigma-0.07)*10 - float64(tr.RT)/1000)
	}}
	est := &Estimator{Model: model, NumThreads: 3}

	res, err := est.Fit(context.Background(), someTrials, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	for i, s := range res.Scores {
		if s > res.Scores[res.Best] {
			t.Errorf("point %d scores %v above the selected %v", i, s, res.Scores[res.Best])
		}
	}
	if res.BestParams.D != 0.006 || res.BestParams.Sigma != 0.07 {
		t.Errorf("best = %v", res.BestParams)
	}
}

func TestFit_DegenerateTrialDoesNotAbort(t *testing.T) {
	grid := mustGrid(t, models.ModelDDM, []float64{0.004, 0.006}, []float64{0.07}, nil)
	model := fakeModel{kind: models.ModelDDM, like: func(p models.ParameterSet, tr models.Trial) float64 {
		if tr.ID == 1 {
			return 0
		}
		return p.D * 100
	}}
	est := &Estimator{Model: model}

	res, err := est.Fit(context.Background(), someTrials, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(res.DegenerateTrials) != 1 || res.DegenerateTrials[0] != 1 {
		t.Errorf("DegenerateTrials = %v, want [1]", res.DegenerateTrials)
	}
	if res.BestParams.D != 0.006 {
		t.Errorf("best = %v, want d=0.006", res.BestParams)
	}
	if math.IsInf(res.Scores[0], 0) || math.IsNaN(res.Scores[0]) {
		t.Errorf("score is not finite: %v", res.Scores[0])
	}
}

func TestFit_FailedPointIsUncompetitive(t *testing.T) {
	grid := mustGrid(t, models.ModelDDM, []float64{0.004, 0.006}, []float64{0.07}, nil)
	model := fakeModel{
		kind: models.ModelDDM,
		like: func(p models.ParameterSet, _ models.Trial) float64 { return p.D * 100 },
		fail: func(p models.ParameterSet) error {
			if p.D == 0.006 {
				return errors.New("boom")
			}
			return nil
		},
	}
	res, err := (&Estimator{Model: model}).Fit(context.Background(), someTrials, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Best != 0 || len(res.FailedPoints) != 1 || res.FailedPoints[0] != 1 {
		t.Errorf("best=%d failed=%v", res.Best, res.FailedPoints)
	}

	model.fail = func(models.ParameterSet) error { return errors.New("boom") }
	if _, err := (&Estimator{Model: model}).Fit(context.Background(), someTrials, grid); err == nil {
		t.Error("expected error when every grid point fails")
	}
}

func TestFit_Cancelled(t *testing.T) {
	grid := mustGrid(t, models.ModelDDM, []float64{0.004, 0.006}, []float64{0.07}, nil)
	model := fakeModel{kind: models.ModelDDM, like: func(models.ParameterSet, models.Trial) float64 { return 0.5 }}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Estimator{Model: model}).Fit(ctx, someTrials, grid); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFit_ModelKindMismatch(t *testing.T) {
	grid := mustGrid(t, models.ModelDDM, []float64{0.004}, []float64{0.07}, nil)
	if _, err := (&Estimator{Model: fakeModel{kind: models.ModelADDM}}).Fit(context.Background(), someTrials, grid); err == nil {
		t.Error("expected error for mismatched model kind")
	}
}

func TestFit_MAPUsesPriors(t *testing.T) {
	grid := mustGrid(t, models.ModelDDM, []float64{0.004, 0.006}, []float64{0.07}, nil)
	model := fakeModel{kind: models.ModelDDM, like: func(models.ParameterSet, models.Trial) float64 { return 0.5 }}
	priors, err := NewPriors(map[models.ParameterSet]float64{
		{D: 0.004, Sigma: 0.07, Theta: 0.9}: 1,
		{D: 0.006, Sigma: 0.07}:             3,
	})
	if err != nil {
		t.Fatalf("NewPriors: %v", err)
	}

	res, err := (&Estimator{Model: model, Priors: priors}).Fit(context.Background(), someTrials, grid)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if res.Best != 1 {
		t.Errorf("best = %d, want 1", res.Best)
	}
	if math.Abs(math.Exp(res.LogPriors[1])-0.75) > 1e-12 {
		t.Errorf("normalized prior = %v, want 0.75", math.Exp(res.LogPriors[1]))
	}
}

func TestPriors_Validation(t *testing.T) {
	if _, err := NewPriors(map[models.ParameterSet]float64{{D: 1, Sigma: 1}: 0}); err == nil {
		t.Error("expected error for zero prior")
	}
	priors, err := NewPriors(map[models.ParameterSet]float64{{D: 1, Sigma: 1, Theta: 0.5}: 1})
	if err != nil {
		t.Fatalf("NewPriors: %v", err)
	}
	if _, err := priors.LogPriors(models.ModelADDM, []models.ParameterSet{{D: 1, Sigma: 1, Theta: 0.7}}); err == nil {
		t.Error("expected error for a grid point without a prior")
	}
}

func TestGrid_EnumerationOrder(t *testing.T) {
	g := mustGrid(t, models.ModelADDM, []float64{1, 2}, []float64{0.1, 0.2}, []float64{0, 0.5})
	pts := g.Points()
	if len(pts) != 8 || g.Len() != 8 {
		t.Fatalf("expected 8 points, got %d (Len %d)", len(pts), g.Len())
	}
	want := []models.ParameterSet{
		{D: 1, Sigma: 0.1, Theta: 0}, {D: 1, Sigma: 0.1, Theta: 0.5},
		{D: 1, Sigma: 0.2, Theta: 0}, {D: 1, Sigma: 0.2, Theta: 0.5},
		{D: 2, Sigma: 0.1, Theta: 0},
	}
	for i, w := range want {
		if pts[i] != w {
			t.Errorf("point %d = %v, want %v", i, pts[i], w)
		}
	}

	ddmGrid := mustGrid(t, models.ModelDDM, []float64{1, 2}, []float64{0.1}, []float64{0.3, 0.6})
	if ddmGrid.Len() != 2 {
		t.Errorf("DDM grid should ignore theta, Len() = %d", ddmGrid.Len())
	}
	if _, err := NewGrid(models.ModelDDM, []float64{1}, []float64{-1}, nil); err == nil {
		t.Error("expected error for negative sigma")
	}
}

func TestLogLikelihood(t *testing.T) {
	if got := LogLikelihood(0); got != constants.LogLikelihoodFloor {
		t.Errorf("LogLikelihood(0) = %v, want floor", got)
	}
	if got := LogLikelihood(math.NaN()); got != constants.LogLikelihoodFloor {
		t.Errorf("LogLikelihood(NaN) = %v, want floor", got)
	}
	if got := LogLikelihood(math.SmallestNonzeroFloat64); got <= constants.LogLikelihoodFloor {
		t.Errorf("smallest positive likelihood should score above the floor, got %v", got)
	}
	if got := LogLikelihood(1); got != 0 {
		t.Errorf("LogLikelihood(1) = %v, want 0", got)
	}
}

func TestResult_PosteriorsAndSampling(t *testing.T) {
	res := &Result{
		Kind: models.ModelDDM,
		Points: []models.ParameterSet{
			{D: 1, Sigma: 1}, {D: 2, Sigma: 1}, {D: 3, Sigma: 1},
		},
		Scores: []float64{-1000, math.Log(3), math.Inf(-1)},
	}
	post := res.Posteriors()
	sum := post[0] + post[1] + post[2]
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("posteriors sum to %v", sum)
	}
	if post[2] != 0 {
		t.Errorf("-Inf score should have zero posterior, got %v", post[2])
	}
	if post[1] < 0.999 {
		t.Errorf("dominant point posterior = %v", post[1])
	}

	samples, err := res.SamplePosterior(randutil.New(5), 50)
	if err != nil {
		t.Fatalf("SamplePosterior: %v", err)
	}
	for _, s := range samples {
		if s.D == 3 {
			t.Fatal("sampled a point with zero posterior")
		}
	}

	mean := res.PosteriorMean()
	if math.Abs(mean.D-2) > 1e-3 {
		t.Errorf("posterior mean d = %v, want about 2", mean.D)
	}
}
