package dataio

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// LoadTrialConditions reads item_left,item_right[,num_trials] rows. Rows
// without num_trials request perCondition trials. An empty path returns the
// default conditions.
func LoadTrialConditions(path string, perCondition int) ([]models.TrialCondition, error) {
	if path == "" {
		return models.DefaultTrialConditions(perCondition), nil
	}
	t, err := readTable(path, "item_left", "item_right")
	if err != nil {
		return nil, err
	}
	conds := make([]models.TrialCondition, 0, len(t.rows))
	for i := range t.rows {
		left, err := t.float(i, "item_left")
		if err != nil {
			return nil, err
		}
		right, err := t.float(i, "item_right")
		if err != nil {
			return nil, err
		}
		n := perCondition
		if t.has("num_trials") {
			if n, err = t.integer(i, "num_trials"); err != nil {
				return nil, err
			}
			if n < 0 {
				return nil, fmt.Errorf("%s line %d: negative num_trials %d", path, i+2, n)
			}
		}
		conds = append(conds, models.TrialCondition{ValueLeft: left, ValueRight: right, NumTrials: n})
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("%s has no trial conditions", path)
	}
	return conds, nil
}

type trialKey struct {
	subject string
	id      int
}

// LoadDataset reads choices and RTs from expdataPath and, if fixationsPath
// is not empty, fixation sequences from fixationsPath. subjectIDs restricts
// the result; empty means every subject.
func LoadDataset(expdataPath, fixationsPath string, subjectIDs []string) (*models.Dataset, error) {
	t, err := readTable(expdataPath, "parcode", "trial", "rt", "choice", "item_left", "item_right")
	if err != nil {
		return nil, err
	}

	var order []trialKey
	trials := make(map[trialKey]*models.Trial, len(t.rows))
	for i := range t.rows {
		subject, err := t.str(i, "parcode")
		if err != nil {
			return nil, err
		}
		id, err := t.integer(i, "trial")
		if err != nil {
			return nil, err
		}
		rt, err := t.integer(i, "rt")
		if err != nil {
			return nil, err
		}
		choice, err := t.integer(i, "choice")
		if err != nil {
			return nil, err
		}
		left, err := t.float(i, "item_left")
		if err != nil {
			return nil, err
		}
		right, err := t.float(i, "item_right")
		if err != nil {
			return nil, err
		}
		tr := &models.Trial{
			Subject:    subject,
			ID:         id,
			ValueLeft:  left,
			ValueRight: right,
			Choice:     models.Choice(choice),
			RT:         rt,
		}
		if err := tr.Validate(); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", expdataPath, i+2, err)
		}
		k := trialKey{subject, id}
		if _, dup := trials[k]; dup {
			return nil, fmt.Errorf("%s line %d: duplicate trial %d for subject %s", expdataPath, i+2, id, subject)
		}
		trials[k] = tr
		order = append(order, k)
	}

	if fixationsPath != "" {
		if err := loadFixations(fixationsPath, trials); err != nil {
			return nil, err
		}
	}

	bySubject := make(map[string][]models.Trial)
	for _, k := range order {
		bySubject[k.subject] = append(bySubject[k.subject], *trials[k])
	}
	ds := models.NewDataset(bySubject)
	filtered, err := ds.Filter(subjectIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to select subjects: %w", err)
	}
	return filtered, nil
}

// loadFixations appends fixation rows, in file order, to their trials.
// Rows for trials absent from the experimental data are ignored.
func loadFixations(path string, trials map[trialKey]*models.Trial) error {
	t, err := readTable(path, "parcode", "trial", "fix_item", "fix_time")
	if err != nil {
		return err
	}
	for i := range t.rows {
		subject, err := t.str(i, "parcode")
		if err != nil {
			return err
		}
		id, err := t.integer(i, "trial")
		if err != nil {
			return err
		}
		item, err := t.integer(i, "fix_item")
		if err != nil {
			return err
		}
		dur, err := t.integer(i, "fix_time")
		if err != nil {
			return err
		}
		if dur < 0 {
			return fmt.Errorf("%s line %d: negative fix_time %d", path, i+2, dur)
		}
		tr, ok := trials[trialKey{subject, id}]
		if !ok {
			continue
		}
		fi := models.FixItem(item)
		if !fi.IsItem() {
			fi = models.FixTransition
		}
		tr.Fixations = append(tr.Fixations, models.Fixation{Item: fi, Duration: dur})
	}
	return nil
}

// LoadPriors reads d,sigma,theta,prior rows. theta may be omitted for DDM
// priors.
func LoadPriors(path string) (map[models.ParameterSet]float64, error) {
	t, err := readTable(path, "d", "sigma", "prior")
	if err != nil {
		return nil, err
	}
	out := make(map[models.ParameterSet]float64, len(t.rows))
	for i := range t.rows {
		var p models.ParameterSet
		if p.D, err = t.float(i, "d"); err != nil {
			return nil, err
		}
		if p.Sigma, err = t.float(i, "sigma"); err != nil {
			return nil, err
		}
		if t.has("theta") {
			if p.Theta, err = t.float(i, "theta"); err != nil {
				return nil, err
			}
		}
		w, err := t.float(i, "prior")
		if err != nil {
			return nil, err
		}
		if _, dup := out[p]; dup {
			return nil, fmt.Errorf("%s line %d: duplicate prior for %s", path, i+2, p)
		}
		out[p] = w
	}
	return out, nil
}
