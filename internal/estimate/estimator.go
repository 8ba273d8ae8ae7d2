package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/logging"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoData is returned when there are no trials to fit.
	ErrNoData = errors.New("no trials to fit")

	// ErrEmptyGrid is returned when the parameter grid has no points.
	ErrEmptyGrid = errors.New("parameter grid is empty")
)

// Model computes per-trial likelihoods for one parameter set. Stochastic
// models draw from streams derived from their seed and stream.
type Model interface {
	Kind() models.ModelKind
	Likelihoods(ctx context.Context, trials []models.Trial, p models.ParameterSet, stream int) ([]float64, error)
}

// LogLikelihood maps a likelihood to its natural log. Zero, negative and
// non-finite values map to constants.LogLikelihoodFloor.
func LogLikelihood(p float64) float64 {
	if !(p > 0) || math.IsInf(p, 0) {
		return constants.LogLikelihoodFloor
	}
	return math.Log(p)
}

// Estimator runs the grid search.
type Estimator struct {
	Model      Model
	NumThreads int
	Priors     *Priors // nil means maximum likelihood
	Stream     int     // random stream shared by every grid point

	logger *slog.Logger
	events *logging.EventLogger
}

// SetLogger sets the operational logger and event trace.
func (e *Estimator) SetLogger(logger *slog.Logger, events *logging.EventLogger) {
	e.logger = logger
	e.events = events
}

// Fit scores every grid point against trials and returns the full result.
// A grid point whose likelihood computation fails scores -Inf and the
// search continues; it fails only if every point fails. Cancellation of ctx
// aborts the search.
func (e *Estimator) Fit(ctx context.Context, trials []models.Trial, grid *Grid) (*Result, error) {
	if len(trials) == 0 {
		return nil, ErrNoData
	}
	if grid == nil || grid.Len() == 0 {
		return nil, ErrEmptyGrid
	}
	if e.Model == nil {
		return nil, fmt.Errorf("estimator has no model")
	}
	if e.Model.Kind() != grid.Kind {
		return nil, fmt.Errorf("grid is for %s but the model is %s", grid.Kind, e.Model.Kind())
	}

	points := grid.Points()
	res := &Result{
		Kind:           grid.Kind,
		Points:         points,
		NumTrials:      len(trials),
		LogLikelihoods: make([]float64, len(points)),
		Scores:         make([]float64, len(points)),
	}
	if e.Priors != nil {
		lp, err := e.Priors.LogPriors(grid.Kind, points)
		if err != nil {
			return nil, fmt.Errorf("failed to apply priors: %w", err)
		}
		res.LogPriors = lp
	}

	// floored[i][j] reports whether trial j hit the floor at point i.
	floored := make([][]bool, len(points))
	failed := make([]error, len(points))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	if e.NumThreads > 0 {
		g.SetLimit(e.NumThreads)
	}
	for i, p := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ls, err := e.Model.Likelihoods(gctx, trials, p, e.Stream)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed[i] = err
				res.LogLikelihoods[i] = math.Inf(-1)
				res.Scores[i] = math.Inf(-1)
				return nil
			}
			mask := make([]bool, len(ls))
			sum := 0.0
			for j, l := range ls {
				ll := LogLikelihood(l)
				mask[j] = ll == constants.LogLikelihoodFloor
				sum += ll
			}
			floored[i] = mask
			res.LogLikelihoods[i] = sum
			res.Scores[i] = sum
			if res.LogPriors != nil {
				res.Scores[i] += res.LogPriors[i]
			}
			e.scored(gctx, i, p, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allFailed := true
	for i, err := range failed {
		if err == nil {
			allFailed = false
			continue
		}
		res.FailedPoints = append(res.FailedPoints, i)
		if e.logger != nil {
			e.logger.Warn("grid point failed", "params", points[i].Format(grid.Kind), "error", err)
		}
	}
	if allFailed {
		return nil, fmt.Errorf("every grid point failed, first error: %w", failed[0])
	}

	res.DegenerateTrials = degenerate(floored, len(trials))
	for _, j := range res.DegenerateTrials {
		t := trials[j]
		if e.logger != nil {
			e.logger.Warn("trial has zero likelihood at every grid point",
				"subject", t.Subject, "trial", t.ID, "rt", t.RT, "choice", t.Choice)
		}
		e.events.Log(logging.EventDegenerateTrial, map[string]any{
			"index": j, "subject": t.Subject, "trial": t.ID, "rt": t.RT, "choice": int(t.Choice),
		})
	}

	res.Best = argmax(res.Scores)
	res.BestParams = points[res.Best]
	if e.logger != nil {
		e.logger.Info("grid search complete",
			"points", len(points),
			"trials", len(trials),
			"best", res.BestParams.Format(grid.Kind),
			"score", res.Scores[res.Best],
			"elapsed", time.Since(start))
	}
	return res, nil
}

func (e *Estimator) scored(ctx context.Context, i int, p models.ParameterSet, res *Result) {
	if e.logger != nil {
		e.logger.Log(ctx, logging.LevelTrace, "grid point scored",
			"index", i, "params", p.Format(res.Kind), "log_likelihood", res.LogLikelihoods[i])
	}
	e.events.Log(logging.EventGridPointScored, map[string]any{
		"index": i, "d": p.D, "sigma": p.Sigma, "theta": p.Theta,
		"log_likelihood": res.LogLikelihoods[i], "score": res.Scores[i],
	})
}

// argmax returns the first index whose score is within tolerance of the
// maximum. The result does not depend on the order scores were computed in.
func argmax(scores []float64) int {
	best := math.Inf(-1)
	for _, s := range scores {
		if s > best {
			best = s
		}
	}
	tol := constants.TieTolerance * math.Max(1, math.Abs(best))
	for i, s := range scores {
		if s >= best-tol {
			return i
		}
	}
	return 0
}

// degenerate returns the trials floored at every scored point.
func degenerate(floored [][]bool, numTrials int) []int {
	var out []int
	for j := 0; j < numTrials; j++ {
		all, seen := true, false
		for _, mask := range floored {
			if mask == nil {
				continue
			}
			seen = true
			if !mask[j] {
				all = false
				break
			}
		}
		if seen && all {
			out = append(out, j)
		}
	}
	return out
}
