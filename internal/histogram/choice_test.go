package histogram

import (
	"math"
	"slices"
	"testing"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

func TestChoiceCurve_Proportions(t *testing.T) {
	trials := []models.Trial{
		{ValueLeft: 3, ValueRight: 1, Choice: models.ChoiceLeft},
		{ValueLeft: 3, ValueRight: 1, Choice: models.ChoiceLeft},
		{ValueLeft: 3, ValueRight: 1, Choice: models.ChoiceLeft},
		{ValueLeft: 3, ValueRight: 1, Choice: models.ChoiceRight},
		{ValueLeft: 2, ValueRight: 0, Choice: models.ChoiceRight}, // same diff as 3,1
		{ValueLeft: 1, ValueRight: 3, Choice: models.ChoiceRight},
		{ValueLeft: 1, ValueRight: 3, Choice: models.ChoiceLeft},
		{ValueLeft: 2, ValueRight: 2, Choice: 0}, // no choice
	}
	c := NewChoiceCurve(trials)

	if want := []float64{-2, 2}; !slices.Equal(c.ValueDiffs, want) {
		t.Fatalf("ValueDiffs = %v, want %v", c.ValueDiffs, want)
	}
	if want := []float64{0.5, 0.6}; !slices.Equal(c.Proportions(), want) {
		t.Errorf("Proportions() = %v, want %v", c.Proportions(), want)
	}
	if c.Trials() != 7 {
		t.Errorf("Trials() = %v, want 7", c.Trials())
	}

	if p, n := c.At(2); p != 0.6 || n != 5 {
		t.Errorf("At(2) = %v, %v, want 0.6, 5", p, n)
	}
	if p, n := c.At(0); !math.IsNaN(p) || n != 0 {
		t.Errorf("At(0) = %v, %v, want NaN, 0", p, n)
	}
}

func TestUnionDiffs(t *testing.T) {
	a := NewChoiceCurve([]models.Trial{
		{ValueLeft: 3, ValueRight: 1, Choice: models.ChoiceLeft},
		{ValueLeft: 0, ValueRight: 1, Choice: models.ChoiceLeft},
	})
	b := NewChoiceCurve([]models.Trial{
		{ValueLeft: 1, ValueRight: 3, Choice: models.ChoiceLeft},
		{ValueLeft: 2, ValueRight: 0, Choice: models.ChoiceRight},
	})
	if got, want := UnionDiffs(a, b), []float64{-2, -1, 2}; !slices.Equal(got, want) {
		t.Errorf("UnionDiffs() = %v, want %v", got, want)
	}
}
