package ddm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// StateGrid discretizes the RDV axis between the barriers. Probability mass
// starts at the zero state and is advanced one time step at a time by a
// Kernel; mass leaving the grid is recorded as a barrier crossing.
type StateGrid struct {
	Barrier float64
	Step    float64
	States  []float64
	start   int
}

// NewStateGrid builds the grid -barrier, -barrier+step, ..., barrier.
func NewStateGrid(barrier, step float64) (*StateGrid, error) {
	if barrier <= 0 || step <= 0 || step >= barrier {
		return nil, fmt.Errorf("invalid state grid: barrier %g, step %g", barrier, step)
	}
	n := int(math.Round(2*barrier/step)) + 1
	g := &StateGrid{Barrier: barrier, Step: step, States: make([]float64, n)}
	best := math.Inf(1)
	for i := range g.States {
		x := -barrier + float64(i)*step
		switch {
		case i == n-1:
			x = barrier
		case math.Abs(x) < step/2:
			x = 0
		}
		g.States[i] = x
		if math.Abs(x) < best {
			best = math.Abs(x)
			g.start = i
		}
	}
	return g, nil
}

// Initial returns a fresh mass vector with all mass on the zero state.
func (g *StateGrid) Initial() []float64 {
	pr := make([]float64, len(g.States))
	pr[g.start] = 1
	return pr
}

// Kernel is the one-step transition operator for a fixed drift mean and
// noise sigma.
type Kernel struct {
	n     int
	trans []float64 // row-major: trans[to*n+from]
	up    []float64 // probability of crossing +barrier from each state
	down  []float64 // probability of crossing -barrier from each state
}

// Kernel precomputes the transition operator for one drift mean.
func (g *StateGrid) Kernel(mean, sigma float64) *Kernel {
	n := len(g.States)
	k := &Kernel{
		n:     n,
		trans: make([]float64, n*n),
		up:    make([]float64, n),
		down:  make([]float64, n),
	}
	norm := distuv.Normal{Mu: mean, Sigma: sigma}
	for to, x := range g.States {
		// States on a barrier are absorbed, never occupied.
		if x <= -g.Barrier || x >= g.Barrier {
			continue
		}
		row := k.trans[to*n : (to+1)*n]
		for from, y := range g.States {
			row[from] = g.Step * norm.Prob(x-y)
		}
	}
	for from, y := range g.States {
		k.up[from] = 1 - norm.CDF(g.Barrier-y)
		k.down[from] = norm.CDF(-g.Barrier - y)
	}
	return k
}

// Advance moves pr one step forward into next and returns the mass that
// crossed each barrier during the step. The total is rescaled to the mass
// that entered the step, absorbing the discretization error.
func (k *Kernel) Advance(pr, next []float64) (up, down float64) {
	for to := 0; to < k.n; to++ {
		next[to] = floats.Dot(k.trans[to*k.n:(to+1)*k.n], pr)
	}
	up = floats.Dot(k.up, pr)
	down = floats.Dot(k.down, pr)

	sumIn := floats.Sum(pr)
	sumOut := floats.Sum(next) + up + down
	if sumOut > 0 {
		scale := sumIn / sumOut
		floats.Scale(scale, next)
		up *= scale
		down *= scale
	}
	return up, down
}

// Crossings propagates the initial mass for steps steps under one kernel.
// up[t] and down[t] hold the mass crossing each barrier during step t+1.
func (g *StateGrid) Crossings(k *Kernel, steps int) (up, down []float64) {
	up = make([]float64, steps)
	down = make([]float64, steps)
	pr := g.Initial()
	next := make([]float64, len(pr))
	for t := 0; t < steps; t++ {
		up[t], down[t] = k.Advance(pr, next)
		pr, next = next, pr
	}
	return up, down
}
