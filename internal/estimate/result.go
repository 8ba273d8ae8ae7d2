package estimate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Result holds the score of every grid point, aligned with Points.
type Result struct {
	Kind           models.ModelKind      `json:"kind"`
	Points         []models.ParameterSet `json:"points"`
	LogLikelihoods []float64             `json:"log_likelihoods"`
	LogPriors      []float64             `json:"log_priors,omitempty"` // nil for MLE
	Scores         []float64             `json:"scores"`               // log-likelihood plus log-prior
	NumTrials      int                   `json:"num_trials"`

	Best       int                 `json:"best"`
	BestParams models.ParameterSet `json:"best_params"`

	// DegenerateTrials lists trials floored at every grid point.
	DegenerateTrials []int `json:"degenerate_trials,omitempty"`
	// FailedPoints lists grid points whose likelihood computation failed.
	FailedPoints []int `json:"failed_points,omitempty"`
}

// Posteriors returns the normalized posterior mass of each grid point.
func (r *Result) Posteriors() []float64 {
	finite := make([]float64, 0, len(r.Scores))
	for _, s := range r.Scores {
		if !math.IsInf(s, -1) {
			finite = append(finite, s)
		}
	}
	out := make([]float64, len(r.Scores))
	if len(finite) == 0 {
		return out
	}
	lse := floats.LogSumExp(finite)
	for i, s := range r.Scores {
		if !math.IsInf(s, -1) {
			out[i] = math.Exp(s - lse)
		}
	}
	return out
}

// PosteriorMean returns the posterior-weighted mean of each parameter.
func (r *Result) PosteriorMean() models.ParameterSet {
	w := r.Posteriors()
	ds := make([]float64, len(r.Points))
	ss := make([]float64, len(r.Points))
	ts := make([]float64, len(r.Points))
	for i, p := range r.Points {
		ds[i], ss[i], ts[i] = p.D, p.Sigma, p.Theta
	}
	return models.ParameterSet{
		D:     stat.Mean(ds, w),
		Sigma: stat.Mean(ss, w),
		Theta: stat.Mean(ts, w),
	}
}

// SamplePosterior draws n parameter sets from the grid posterior.
func (r *Result) SamplePosterior(rng *rand.Rand, n int) ([]models.ParameterSet, error) {
	if n < 0 {
		return nil, fmt.Errorf("sample count must be non-negative, got %d", n)
	}
	post := r.Posteriors()
	cum := make([]float64, len(post))
	floats.CumSum(cum, post)
	if len(cum) == 0 || cum[len(cum)-1] <= 0 {
		return nil, fmt.Errorf("posterior has no mass")
	}
	total := cum[len(cum)-1]

	out := make([]models.ParameterSet, n)
	for k := range out {
		u := rng.Float64() * total
		i := sort.Search(len(cum), func(i int) bool { return cum[i] > u })
		if i == len(cum) {
			i = len(cum) - 1
		}
		out[k] = r.Points[i]
	}
	return out, nil
}
