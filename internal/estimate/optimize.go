package estimate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/randutil"
	"gonum.org/v1/gonum/optimize"
)

// OptimizeOptions configures the continuous likelihood search.
type OptimizeOptions struct {
	// Restarts is the number of extra Nelder-Mead runs started from a
	// random perturbation of the best point found so far.
	Restarts int
	// Jump is the standard deviation of the restart perturbation in the
	// transformed parameter space.
	Jump float64
	// MaxEvaluations bounds likelihood evaluations per run; 0 is unbounded.
	MaxEvaluations int
	// Seed drives the restart perturbations.
	Seed uint64
}

// DefaultOptimizeOptions returns the standard search settings.
func DefaultOptimizeOptions() OptimizeOptions {
	return OptimizeOptions{Restarts: 3, Jump: 0.3, MaxEvaluations: 400}
}

// Optimum is the outcome of a continuous likelihood search.
type Optimum struct {
	Kind          models.ModelKind    `json:"kind"`
	Start         models.ParameterSet `json:"start"`
	StartLogLik   float64             `json:"start_log_likelihood"`
	Params        models.ParameterSet `json:"params"`
	LogLikelihood float64             `json:"log_likelihood"`
	Evaluations   int                 `json:"evaluations"`
	Runs          int                 `json:"runs"`
}

// Optimize maximizes the summed log-likelihood of trials over continuous
// parameters with Nelder-Mead, starting from start (usually the grid
// argmax) and restarting from perturbations of the incumbent. d and sigma
// are searched on a log scale and theta on a logit scale, so every
// candidate is valid. The returned point never scores below start.
func (e *Estimator) Optimize(ctx context.Context, trials []models.Trial, start models.ParameterSet, opts OptimizeOptions) (*Optimum, error) {
	if len(trials) == 0 {
		return nil, ErrNoData
	}
	if e.Model == nil {
		return nil, fmt.Errorf("estimator has no model")
	}
	kind := e.Model.Kind()
	if err := start.Validate(kind); err != nil {
		return nil, fmt.Errorf("invalid starting point: %w", err)
	}
	if opts.Restarts < 0 || opts.Jump < 0 || opts.MaxEvaluations < 0 {
		return nil, fmt.Errorf("optimize options must be non-negative")
	}

	var evalErr error
	evaluations := 0
	nll := func(x []float64) float64 {
		evaluations++
		p := fromUnconstrained(kind, x)
		if evalErr != nil || ctx.Err() != nil || p.Validate(kind) != nil {
			return math.MaxFloat64
		}
		sum, err := e.logLikelihood(ctx, trials, p)
		if err != nil {
			evalErr = err
			return math.MaxFloat64
		}
		return -sum
	}
	problem := optimize.Problem{
		Func: nll,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			if evalErr != nil {
				return optimize.Failure, evalErr
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: opts.MaxEvaluations,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-6, Relative: 1e-9, Iterations: 50},
	}

	begin := time.Now()
	x0 := toUnconstrained(kind, start)
	startLL, err := e.logLikelihood(ctx, trials, start)
	if err != nil {
		return nil, fmt.Errorf("failed to score starting point: %w", err)
	}
	bestX, bestF, bestP := x0, -startLL, start
	rng := randutil.New(opts.Seed)
	runs := 0

	for r := 0; r <= opts.Restarts; r++ {
		from := make([]float64, len(bestX))
		copy(from, bestX)
		if r > 0 {
			for i := range from {
				from[i] += opts.Jump * rng.NormFloat64()
			}
		}
		res, err := optimize.Minimize(problem, from, settings, &optimize.NelderMead{})
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if evalErr != nil {
			return nil, fmt.Errorf("likelihood failed during optimization: %w", evalErr)
		}
		runs++
		if res == nil {
			if e.logger != nil {
				e.logger.Warn("optimizer run failed", "run", r, "error", err)
			}
			continue
		}
		if e.logger != nil {
			e.logger.Debug("optimizer run finished", "run", r, "status", res.Status.String(),
				"params", fromUnconstrained(kind, res.X).Format(kind), "nll", res.F, "error", err)
		}
		if res.F < bestF {
			bestX, bestF, bestP = res.X, res.F, fromUnconstrained(kind, res.X)
		}
	}

	out := &Optimum{
		Kind:          kind,
		Start:         start,
		StartLogLik:   startLL,
		Params:        bestP,
		LogLikelihood: -bestF,
		Evaluations:   evaluations,
		Runs:          runs,
	}
	if e.logger != nil {
		e.logger.Info("likelihood optimization complete",
			"start", start.Format(kind),
			"best", out.Params.Format(kind),
			"log_likelihood", out.LogLikelihood,
			"evaluations", evaluations,
			"elapsed", time.Since(begin))
	}
	return out, nil
}

// logLikelihood returns the summed, floored log-likelihood of trials at p.
func (e *Estimator) logLikelihood(ctx context.Context, trials []models.Trial, p models.ParameterSet) (float64, error) {
	ls, err := e.Model.Likelihoods(ctx, trials, p, e.Stream)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, l := range ls {
		sum += LogLikelihood(l)
	}
	return sum, nil
}

// Starting points are moved this far inside the parameter bounds so the
// log and logit transforms stay finite.
const (
	dEdge     = 1e-9
	thetaEdge = 1e-6
)

func toUnconstrained(kind models.ModelKind, p models.ParameterSet) []float64 {
	x := []float64{math.Log(math.Max(p.D, dEdge)), math.Log(p.Sigma)}
	if kind == models.ModelADDM {
		th := math.Min(math.Max(p.Theta, thetaEdge), 1-thetaEdge)
		x = append(x, math.Log(th/(1-th)))
	}
	return x
}

func fromUnconstrained(kind models.ModelKind, x []float64) models.ParameterSet {
	p := models.ParameterSet{D: math.Exp(x[0]), Sigma: math.Exp(x[1])}
	if kind == models.ModelADDM {
		p.Theta = 1 / (1 + math.Exp(-x[2]))
	}
	return p
}
