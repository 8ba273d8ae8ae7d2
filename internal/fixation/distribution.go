// Package fixation builds empirical fixation-duration distributions from
// observed trials and corrects them for the truncation of last fixations.
package fixation

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/manvincent/aDDM-Toolbox/internal/histogram"
	"gonum.org/v1/gonum/floats"
)

// ErrNoFixations is returned when a distribution needed for sampling is
// missing or empty.
var ErrNoFixations = errors.New("no fixations recorded")

// Key identifies one fixation distribution: the 1-based fixation number
// (pooled at the last class) and the fixated-minus-unfixated value
// difference.
type Key struct {
	FixNumber int     `json:"fix_number"`
	ValueDiff float64 `json:"value_diff"`
}

func (k Key) String() string {
	return fmt.Sprintf("fix%d/diff%+g", k.FixNumber, k.ValueDiff)
}

// SortKeys orders keys by fixation number, then value difference.
func SortKeys(keys []Key) {
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.FixNumber, b.FixNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.ValueDiff, b.ValueDiff)
	})
}

// Distribution is binned mass over fixation durations. Mass may hold raw
// counts or probabilities; sampling normalizes on the fly.
type Distribution struct {
	Binning histogram.Binning `json:"binning"`
	Mass    []float64         `json:"mass"`
}

// NewDistribution returns an empty distribution over binning.
func NewDistribution(binning histogram.Binning) *Distribution {
	return &Distribution{Binning: binning, Mass: make([]float64, binning.NumBins())}
}

// Add counts one duration, clamped into the binned range.
func (d *Distribution) Add(duration int) {
	d.Mass[d.Binning.Clamp(duration)]++
}

// Total returns the summed mass.
func (d *Distribution) Total() float64 {
	return floats.Sum(d.Mass)
}

// Clone returns a deep copy.
func (d *Distribution) Clone() *Distribution {
	return &Distribution{Binning: d.Binning, Mass: slices.Clone(d.Mass)}
}

// Normalized returns a copy whose mass sums to one. An empty distribution is
// returned as an empty copy.
func (d *Distribution) Normalized() *Distribution {
	out := d.Clone()
	if total := out.Total(); total > 0 {
		floats.Scale(1/total, out.Mass)
	}
	return out
}

// Sample draws a bin in proportion to its mass and returns a duration drawn
// uniformly inside it.
func (d *Distribution) Sample(rng *rand.Rand) (int, error) {
	total := d.Total()
	if total <= 0 {
		return 0, ErrNoFixations
	}
	u := rng.Float64() * total
	k := -1
	acc := 0.0
	for i, m := range d.Mass {
		if m <= 0 {
			continue
		}
		k = i
		acc += m
		if u < acc {
			break
		}
	}
	return d.Binning.Lower(k) + rng.IntN(d.Binning.Step), nil
}
