package models

import (
	"fmt"
	"sort"
)

// Dataset is the read-only pool of observed trials for one run, keyed by
// subject. It is loaded once and passed explicitly to every consumer.
type Dataset struct {
	subjects []string
	trials   map[string][]Trial
}

// NewDataset builds a Dataset. Subjects are ordered lexically and each
// subject's trials by trial ID. The input is deep-copied.
func NewDataset(bySubject map[string][]Trial) *Dataset {
	ds := &Dataset{trials: make(map[string][]Trial, len(bySubject))}
	for subject, trials := range bySubject {
		cp := cloneTrials(trials)
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
		ds.trials[subject] = cp
		ds.subjects = append(ds.subjects, subject)
	}
	sort.Strings(ds.subjects)
	return ds
}

// Subjects returns the subject ids in order.
func (d *Dataset) Subjects() []string {
	out := make([]string, len(d.subjects))
	copy(out, d.subjects)
	return out
}

// Trials returns a deep copy of one subject's trials.
func (d *Dataset) Trials(subject string) []Trial {
	return cloneTrials(d.trials[subject])
}

// Len returns the total number of trials.
func (d *Dataset) Len() int {
	n := 0
	for _, t := range d.trials {
		n += len(t)
	}
	return n
}

// All returns a deep copy of every trial, grouped by subject in subject
// order.
func (d *Dataset) All() []Trial {
	var out []Trial
	for _, s := range d.subjects {
		for _, t := range d.trials[s] {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Filter returns a new Dataset restricted to the given subjects. An empty
// list keeps every subject. Unknown subjects are an error.
func (d *Dataset) Filter(subjects []string) (*Dataset, error) {
	if len(subjects) == 0 {
		return d, nil
	}
	sel := make(map[string][]Trial, len(subjects))
	for _, s := range subjects {
		trials, ok := d.trials[s]
		if !ok {
			return nil, fmt.Errorf("subject %q not found in data", s)
		}
		sel[s] = trials
	}
	return NewDataset(sel), nil
}

// Select returns a new Dataset holding only the trials for which keep
// returns true.
func (d *Dataset) Select(keep func(Trial) bool) *Dataset {
	sel := make(map[string][]Trial, len(d.subjects))
	for _, s := range d.subjects {
		var kept []Trial
		for _, t := range d.trials[s] {
			if keep(t) {
				kept = append(kept, t)
			}
		}
		sel[s] = kept
	}
	return NewDataset(sel)
}

// SelectSet returns a new Dataset holding only the trials in set.
func (d *Dataset) SelectSet(set TrialSet) *Dataset {
	if set == TrialsAll || set == "" {
		return d
	}
	return d.Select(set.Contains)
}

func cloneTrials(src []Trial) []Trial {
	out := make([]Trial, len(src))
	for i, t := range src {
		out[i] = t.Clone()
	}
	return out
}
