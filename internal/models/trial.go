package models

import (
	"fmt"
	"strings"
)

// Choice is the option selected in a trial.
type Choice int

const (
	ChoiceLeft  Choice = -1 // RDV crossed the upper barrier
	ChoiceRight Choice = 1  // RDV crossed the lower barrier
)

// Valid reports whether c is one of the two known choices.
func (c Choice) Valid() bool {
	return c == ChoiceLeft || c == ChoiceRight
}

func (c Choice) String() string {
	switch c {
	case ChoiceLeft:
		return "left"
	case ChoiceRight:
		return "right"
	default:
		return fmt.Sprintf("choice(%d)", int(c))
	}
}

// FixItem identifies the location attended during a fixation.
type FixItem int

const (
	FixTransition FixItem = 0 // latency, blank or saccade
	FixLeft       FixItem = 1
	FixRight      FixItem = 2
)

// IsItem reports whether the fixation is on one of the two stimuli.
func (f FixItem) IsItem() bool {
	return f == FixLeft || f == FixRight
}

// Other returns the opposite stimulus location. Transitions map to themselves.
func (f FixItem) Other() FixItem {
	switch f {
	case FixLeft:
		return FixRight
	case FixRight:
		return FixLeft
	default:
		return f
	}
}

// Fixation is a continuous interval of attention on one location.
type Fixation struct {
	Item     FixItem `json:"item" yaml:"item"`
	Duration int     `json:"duration" yaml:"duration"` // milliseconds
}

// Trial is one decision instance, observed or simulated.
// Trials are never mutated after they are created or loaded.
type Trial struct {
	Subject    string  `json:"subject,omitempty" yaml:"subject,omitempty"`
	ID         int     `json:"id" yaml:"id"`
	ValueLeft  float64 `json:"value_left" yaml:"value_left"`
	ValueRight float64 `json:"value_right" yaml:"value_right"`
	Choice     Choice  `json:"choice" yaml:"choice"`
	RT         int     `json:"rt" yaml:"rt"` // milliseconds

	// Fixations is the ordered attention schedule (aDDM only). The last item
	// fixation is the one interrupted by the decision.
	Fixations []Fixation `json:"fixations,omitempty" yaml:"fixations,omitempty"`

	// UninterruptedLastFixTime is the natural duration of the truncated last
	// fixation. Only simulated aDDM trials carry it.
	UninterruptedLastFixTime int `json:"uninterrupted_last_fix_time,omitempty" yaml:"uninterrupted_last_fix_time,omitempty"`
}

// ValueDiff returns the left-minus-right value difference.
func (t Trial) ValueDiff() float64 {
	return t.ValueLeft - t.ValueRight
}

// FixatedValueDiff returns the value of the fixated item minus the value of
// the unfixated one, for an item fixation.
func (t Trial) FixatedValueDiff(item FixItem) float64 {
	if item == FixRight {
		return t.ValueRight - t.ValueLeft
	}
	return t.ValueLeft - t.ValueRight
}

// IsCis reports whether both item values have the same sign, as for two
// stimuli tilted the same way.
func (t Trial) IsCis() bool {
	return t.ValueLeft*t.ValueRight > 0
}

// IsTrans reports whether the item values have opposite signs.
func (t Trial) IsTrans() bool {
	return t.ValueLeft*t.ValueRight < 0
}

// Clone returns a copy of t that shares no memory with it.
func (t Trial) Clone() Trial {
	if t.Fixations != nil {
		t.Fixations = append([]Fixation(nil), t.Fixations...)
	}
	return t
}

// LastItemFixation returns the index of the last item fixation, or -1 if the
// trial has none.
func (t Trial) LastItemFixation() int {
	for i := len(t.Fixations) - 1; i >= 0; i-- {
		if t.Fixations[i].Item.IsItem() {
			return i
		}
	}
	return -1
}

// ItemFixationCount returns how many fixations landed on a stimulus.
func (t Trial) ItemFixationCount() int {
	n := 0
	for _, f := range t.Fixations {
		if f.Item.IsItem() {
			n++
		}
	}
	return n
}

// Validate checks that the trial can be scored.
func (t Trial) Validate() error {
	if !t.Choice.Valid() {
		return fmt.Errorf("trial %s/%d: invalid choice %d", t.Subject, t.ID, int(t.Choice))
	}
	if t.RT <= 0 {
		return fmt.Errorf("trial %s/%d: rt must be positive, got %d", t.Subject, t.ID, t.RT)
	}
	for i, f := range t.Fixations {
		if f.Duration < 0 {
			return fmt.Errorf("trial %s/%d: fixation %d has negative duration %d", t.Subject, t.ID, i, f.Duration)
		}
	}
	return nil
}

// TrialSet selects trials by the sign pattern of their item values.
type TrialSet string

const (
	TrialsAll   TrialSet = "all"
	TrialsCis   TrialSet = "cis"
	TrialsTrans TrialSet = "trans"
)

// ParseTrialSet maps a case-insensitive name to a TrialSet. An empty name
// selects every trial.
func ParseTrialSet(s string) (TrialSet, error) {
	switch set := TrialSet(strings.ToLower(strings.TrimSpace(s))); set {
	case "":
		return TrialsAll, nil
	case TrialsAll, TrialsCis, TrialsTrans:
		return set, nil
	default:
		return "", fmt.Errorf("unknown trial set %q (valid: all, cis, trans)", s)
	}
}

// Contains reports whether t belongs to the set. Trials with a zero item
// value are neither cis nor trans.
func (s TrialSet) Contains(t Trial) bool {
	switch s {
	case TrialsCis:
		return t.IsCis()
	case TrialsTrans:
		return t.IsTrans()
	default:
		return true
	}
}

// TrialCondition is one stimulus configuration and how many trials to
// generate for it.
type TrialCondition struct {
	ValueLeft  float64 `json:"value_left" yaml:"value_left"`
	ValueRight float64 `json:"value_right" yaml:"value_right"`
	NumTrials  int     `json:"num_trials" yaml:"num_trials"`
}

// DefaultTrialConditions returns every ordered pair of distinct item values
// in {0, 1, 2, 3}, each requesting perCondition trials.
func DefaultTrialConditions(perCondition int) []TrialCondition {
	var conds []TrialCondition
	for left := 0; left <= 3; left++ {
		for right := 0; right <= 3; right++ {
			if left == right {
				continue
			}
			conds = append(conds, TrialCondition{
				ValueLeft:  float64(left),
				ValueRight: float64(right),
				NumTrials:  perCondition,
			})
		}
	}
	return conds
}

// ConditionsFromTrials returns the distinct value pairs present in trials, in
// order of first appearance, each requesting perCondition trials.
func ConditionsFromTrials(trials []Trial, perCondition int) []TrialCondition {
	type pair struct{ l, r float64 }
	seen := make(map[pair]bool)
	var conds []TrialCondition
	for _, t := range trials {
		p := pair{t.ValueLeft, t.ValueRight}
		if seen[p] {
			continue
		}
		seen[p] = true
		conds = append(conds, TrialCondition{ValueLeft: t.ValueLeft, ValueRight: t.ValueRight, NumTrials: perCondition})
	}
	return conds
}
