package histogram

import (
	"math"
	"slices"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"gonum.org/v1/gonum/floats"
)

// ChoiceCurve counts left choices per left-minus-right value difference.
// ValueDiffs is ascending and only holds differences seen in the trials.
type ChoiceCurve struct {
	ValueDiffs []float64
	Left       []float64
	Total      []float64
}

// NewChoiceCurve builds a choice curve from trials. Trials without a valid
// choice are skipped.
func NewChoiceCurve(trials []models.Trial) *ChoiceCurve {
	left := make(map[float64]float64)
	total := make(map[float64]float64)
	for _, t := range trials {
		if !t.Choice.Valid() {
			continue
		}
		diff := t.ValueDiff()
		total[diff]++
		if t.Choice == models.ChoiceLeft {
			left[diff]++
		}
	}

	c := &ChoiceCurve{}
	for diff := range total {
		c.ValueDiffs = append(c.ValueDiffs, diff)
	}
	slices.Sort(c.ValueDiffs)
	for _, diff := range c.ValueDiffs {
		c.Left = append(c.Left, left[diff])
		c.Total = append(c.Total, total[diff])
	}
	return c
}

// Trials returns the number of trials counted.
func (c *ChoiceCurve) Trials() float64 {
	return floats.Sum(c.Total)
}

// Proportions returns P(choose left) for each value difference.
func (c *ChoiceCurve) Proportions() []float64 {
	out := make([]float64, len(c.Total))
	floats.DivTo(out, c.Left, c.Total)
	return out
}

// At returns P(choose left) and the trial count at diff. The proportion is
// NaN when no trial has that difference.
func (c *ChoiceCurve) At(diff float64) (float64, float64) {
	i, ok := slices.BinarySearch(c.ValueDiffs, diff)
	if !ok {
		return math.NaN(), 0
	}
	return c.Left[i] / c.Total[i], c.Total[i]
}

// UnionDiffs returns the ascending union of the value differences of curves.
func UnionDiffs(curves ...*ChoiceCurve) []float64 {
	var all []float64
	for _, c := range curves {
		all = append(all, c.ValueDiffs...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}
