package estimate

import (
	"fmt"
	"math"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// Priors holds prior weights per parameter set for MAP estimation. Weights
// need not be normalized; they are normalized over the grid being searched.
type Priors struct {
	weights map[models.ParameterSet]float64
}

// NewPriors validates the weights. Every weight must be positive and finite.
func NewPriors(weights map[models.ParameterSet]float64) (*Priors, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("no prior weights given")
	}
	cp := make(map[models.ParameterSet]float64, len(weights))
	for p, w := range weights {
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("prior for %s must be positive and finite, got %g", p, w)
		}
		cp[p] = w
	}
	return &Priors{weights: cp}, nil
}

// LogPriors returns the normalized log prior of each point. Every point must
// have a weight. DDM points match weights regardless of theta.
func (p *Priors) LogPriors(kind models.ModelKind, points []models.ParameterSet) ([]float64, error) {
	lookup := p.weights
	if kind == models.ModelDDM {
		lookup = make(map[models.ParameterSet]float64, len(p.weights))
		for ps, w := range p.weights {
			lookup[models.ParameterSet{D: ps.D, Sigma: ps.Sigma}] = w
		}
	}

	raw := make([]float64, len(points))
	total := 0.0
	for i, pt := range points {
		w, ok := lookup[pt]
		if !ok {
			return nil, fmt.Errorf("no prior for grid point %s", pt.Format(kind))
		}
		raw[i] = w
		total += w
	}
	out := make([]float64, len(points))
	for i, w := range raw {
		out[i] = math.Log(w / total)
	}
	return out, nil
}
