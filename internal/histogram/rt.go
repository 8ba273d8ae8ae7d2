package histogram

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"gonum.org/v1/gonum/floats"
)

// RT holds per-choice reaction-time counts over a bounded Binning.
// Trials with RT at or beyond Binning.Max are not binned; they are counted in
// Excluded so callers can report how much data the histogram dropped.
type RT struct {
	Binning  Binning
	Left     []float64
	Right    []float64
	Excluded int
}

// NewRT builds an RT histogram from trials.
func NewRT(binning Binning, trials []models.Trial) (*RT, error) {
	if binning.Max <= 0 {
		return nil, fmt.Errorf("rt histogram needs a bounded binning, got max %d", binning.Max)
	}
	n := binning.NumBins()
	h := &RT{
		Binning: binning,
		Left:    make([]float64, n),
		Right:   make([]float64, n),
	}
	for _, t := range trials {
		h.Add(t)
	}
	return h, nil
}

// Add bins one trial.
func (h *RT) Add(t models.Trial) {
	k, ok := h.Binning.Index(t.RT)
	if !ok {
		h.Excluded++
		return
	}
	switch t.Choice {
	case models.ChoiceLeft:
		h.Left[k]++
	case models.ChoiceRight:
		h.Right[k]++
	default:
		h.Excluded++
	}
}

// Total returns the number of binned trials.
func (h *RT) Total() float64 {
	return floats.Sum(h.Left) + floats.Sum(h.Right)
}

// Normalized returns a copy whose two count vectors together sum to one.
// An empty histogram is returned unchanged.
func (h *RT) Normalized() *RT {
	out := &RT{
		Binning:  h.Binning,
		Left:     append([]float64(nil), h.Left...),
		Right:    append([]float64(nil), h.Right...),
		Excluded: h.Excluded,
	}
	total := h.Total()
	if total == 0 {
		return out
	}
	floats.Scale(1/total, out.Left)
	floats.Scale(1/total, out.Right)
	return out
}

// Distance returns the Euclidean distance between the normalized histograms
// of h and other, taken over both choices.
func (h *RT) Distance(other *RT) (float64, error) {
	if h.Binning != other.Binning {
		return 0, fmt.Errorf("histograms use different binnings: %+v vs %+v", h.Binning, other.Binning)
	}
	a, b := h.Normalized(), other.Normalized()
	return floats.Distance(append(a.Left, a.Right...), append(b.Left, b.Right...), 2), nil
}
