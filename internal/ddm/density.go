package ddm

import (
	"math"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// FirstPassageDensity returns the density of the first passage through the
// barrier that selects choice, at time t measured in steps.
//
// The walk is treated as a Wiener process with drift mean and diffusion sigma
// per step, absorbing boundaries at 0 and 2*barrier, starting at barrier.
// The large-time series of Navarro and Fuss (2009) is truncated adaptively
// and capped at constants.MaxSeriesTerms terms. Truncation can push the sum
// slightly below zero for very small t; the result is clamped at zero.
func FirstPassageDensity(t float64, choice models.Choice, mean, sigma, barrier float64) float64 {
	if t <= 0 || sigma <= 0 || barrier <= 0 {
		return 0
	}
	// Normalize to unit diffusion.
	v := mean / sigma
	a := 2 * barrier / sigma
	w := 0.5

	// The series gives the density at the lower boundary. The upper boundary
	// is the lower boundary of the mirrored process.
	if choice == models.ChoiceLeft {
		v = -v
		w = 1 - w
	}

	tn := t / (a * a)
	k := seriesTerms(tn, constants.SeriesTolerance)

	sum := 0.0
	for j := 1; j <= k; j++ {
		fj := float64(j)
		sum += fj * math.Exp(-fj*fj*math.Pi*math.Pi*tn/2) * math.Sin(fj*math.Pi*w)
	}
	f := math.Pi / (a * a) * math.Exp(-v*a*w-v*v*t/2) * sum
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	return f
}

// seriesTerms returns the number of large-time terms needed for error eps at
// normalized time tn.
func seriesTerms(tn, eps float64) int {
	kl := 1 / (math.Pi * math.Sqrt(tn))
	if math.Pi*tn*eps < 1 {
		bound := math.Sqrt(-2 * math.Log(math.Pi*tn*eps) / (math.Pi * math.Pi * tn))
		kl = math.Max(kl, bound)
	}
	k := int(math.Ceil(kl))
	if k < 1 {
		k = 1
	}
	if k > constants.MaxSeriesTerms {
		k = constants.MaxSeriesTerms
	}
	return k
}
