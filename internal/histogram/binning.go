// Package histogram provides the binning convention shared by RT histograms,
// fixation distributions and the Monte-Carlo likelihood.
//
// Bins are half-open and lower-inclusive: bin k covers [k*Step, (k+1)*Step).
package histogram

import (
	"fmt"
	"math"
)

// Binning describes fixed-width bins starting at zero. Max is the exclusive
// upper edge of the last bin; a zero Max means unbounded.
type Binning struct {
	Step int
	Max  int
}

// NewBinning validates and returns a Binning.
func NewBinning(step, max int) (Binning, error) {
	if step <= 0 {
		return Binning{}, fmt.Errorf("bin step must be positive, got %d", step)
	}
	if max < 0 {
		return Binning{}, fmt.Errorf("bin max must be non-negative, got %d", max)
	}
	return Binning{Step: step, Max: max}, nil
}

// NumBins returns the number of bins below Max. Unbounded binnings have none.
func (b Binning) NumBins() int {
	if b.Max <= 0 {
		return 0
	}
	return (b.Max + b.Step - 1) / b.Step
}

// Index returns the bin holding x. ok is false when x is negative or falls at
// or beyond Max.
func (b Binning) Index(x int) (int, bool) {
	if x < 0 {
		return 0, false
	}
	if b.Max > 0 && x >= b.Max {
		return 0, false
	}
	return x / b.Step, true
}

// Unbounded returns the bin holding x, ignoring Max.
func (b Binning) Unbounded(x int) int {
	return int(math.Floor(float64(x) / float64(b.Step)))
}

// Clamp returns the bin holding x, clamping values outside [0, Max) to the
// first or last bin.
func (b Binning) Clamp(x int) int {
	if x < 0 {
		return 0
	}
	if b.Max > 0 && x >= b.Max {
		return b.NumBins() - 1
	}
	return x / b.Step
}

// Lower returns the inclusive lower edge of bin k.
func (b Binning) Lower(k int) int {
	return k * b.Step
}

// Upper returns the exclusive upper edge of bin k.
func (b Binning) Upper(k int) int {
	return (k + 1) * b.Step
}

// Centers returns the midpoint of each bin below Max.
func (b Binning) Centers() []float64 {
	n := b.NumBins()
	out := make([]float64, n)
	for k := range out {
		out[k] = float64(b.Lower(k)) + float64(b.Step)/2
	}
	return out
}
