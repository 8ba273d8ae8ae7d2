// Package estimate fits DDM and aDDM parameters by exhaustive grid search.
// Every grid point is scored independently on a bounded worker pool; the
// reduction picks the best score, breaking ties by enumeration order.
package estimate

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// Grid is the Cartesian product of candidate values. Points are enumerated
// with D outermost and Theta innermost, each list in the order given.
type Grid struct {
	Kind  models.ModelKind
	D     []float64
	Sigma []float64
	Theta []float64 // ignored for the DDM
}

// NewGrid validates and returns a grid. An empty grid is not an error here;
// Fit reports it as ErrEmptyGrid.
func NewGrid(kind models.ModelKind, d, sigma, theta []float64) (*Grid, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
	g := &Grid{Kind: kind, D: d, Sigma: sigma, Theta: theta}
	for _, p := range g.Points() {
		if err := p.Validate(kind); err != nil {
			return nil, fmt.Errorf("invalid grid point %s: %w", p.Format(kind), err)
		}
	}
	return g, nil
}

// Points enumerates the grid.
func (g *Grid) Points() []models.ParameterSet {
	thetas := g.Theta
	if g.Kind == models.ModelDDM {
		thetas = []float64{0}
	}
	points := make([]models.ParameterSet, 0, len(g.D)*len(g.Sigma)*len(thetas))
	for _, d := range g.D {
		for _, s := range g.Sigma {
			for _, th := range thetas {
				points = append(points, models.ParameterSet{D: d, Sigma: s, Theta: th})
			}
		}
	}
	return points
}

// Len returns the number of grid points.
func (g *Grid) Len() int {
	n := len(g.D) * len(g.Sigma)
	if g.Kind == models.ModelADDM {
		n *= len(g.Theta)
	}
	return n
}
