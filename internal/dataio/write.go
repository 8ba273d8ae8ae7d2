package dataio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/manvincent/aDDM-Toolbox/internal/estimate"
	"github.com/manvincent/aDDM-Toolbox/internal/histogram"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// simulatedSubject labels trials that carry no subject.
const simulatedSubject = "sim"

func subjectOf(t models.Trial) string {
	if t.Subject == "" {
		return simulatedSubject
	}
	return t.Subject
}

// WriteExpdata writes trials in the experimental-data format.
func WriteExpdata(w io.Writer, trials []models.Trial) error {
	rows := make([][]string, 0, len(trials))
	for _, t := range trials {
		rows = append(rows, []string{
			subjectOf(t),
			strconv.Itoa(t.ID),
			strconv.Itoa(t.RT),
			strconv.Itoa(int(t.Choice)),
			formatFloat(t.ValueLeft),
			formatFloat(t.ValueRight),
		})
	}
	return writeCSV(w, []string{"parcode", "trial", "rt", "choice", "item_left", "item_right"}, rows)
}

// WriteFixations writes the trials' fixation sequences in the fixations
// format.
func WriteFixations(w io.Writer, trials []models.Trial) error {
	var rows [][]string
	for _, t := range trials {
		for _, f := range t.Fixations {
			rows = append(rows, []string{
				subjectOf(t),
				strconv.Itoa(t.ID),
				strconv.Itoa(int(f.Item)),
				strconv.Itoa(f.Duration),
			})
		}
	}
	return writeCSV(w, []string{"parcode", "trial", "fix_item", "fix_time"}, rows)
}

// WriteSimulations writes <prefix>_expdata.csv and, when any trial has
// fixations, <prefix>_fixations.csv into dir. It returns the paths written.
func WriteSimulations(dir, prefix string, trials []models.Trial) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	expPath := filepath.Join(dir, prefix+"_expdata.csv")
	if err := WriteFile(expPath, func(w io.Writer) error { return WriteExpdata(w, trials) }); err != nil {
		return nil, err
	}
	paths := []string{expPath}

	hasFixations := false
	for _, t := range trials {
		if len(t.Fixations) > 0 {
			hasFixations = true
			break
		}
	}
	if hasFixations {
		fixPath := filepath.Join(dir, prefix+"_fixations.csv")
		if err := WriteFile(fixPath, func(w io.Writer) error { return WriteFixations(w, trials) }); err != nil {
			return nil, err
		}
		paths = append(paths, fixPath)
	}
	return paths, nil
}

// WriteScores writes one row per grid point with its log-likelihood,
// log-prior, score and posterior.
func WriteScores(w io.Writer, res *estimate.Result) error {
	post := res.Posteriors()
	rows := make([][]string, 0, len(res.Points))
	for i, p := range res.Points {
		lp := ""
		if res.LogPriors != nil {
			lp = formatFloat(res.LogPriors[i])
		}
		rows = append(rows, []string{
			formatFloat(p.D),
			formatFloat(p.Sigma),
			formatFloat(p.Theta),
			formatFloat(res.LogLikelihoods[i]),
			lp,
			formatFloat(res.Scores[i]),
			formatFloat(post[i]),
		})
	}
	return writeCSV(w, []string{"d", "sigma", "theta", "log_likelihood", "log_prior", "score", "posterior"}, rows)
}

// WriteRTHistograms writes the normalized data and simulated RT histograms
// side by side. Both must share a binning.
func WriteRTHistograms(w io.Writer, data, sim *histogram.RT) error {
	if data.Binning != sim.Binning {
		return fmt.Errorf("histograms use different binnings")
	}
	d, s := data.Normalized(), sim.Normalized()
	rows := make([][]string, 0, len(d.Left))
	for k := range d.Left {
		rows = append(rows, []string{
			strconv.Itoa(d.Binning.Lower(k)),
			strconv.Itoa(d.Binning.Upper(k)),
			formatFloat(d.Left[k]),
			formatFloat(d.Right[k]),
			formatFloat(s.Left[k]),
			formatFloat(s.Right[k]),
		})
	}
	return writeCSV(w, []string{"bin_lower", "bin_upper", "data_left", "data_right", "sim_left", "sim_right"}, rows)
}

// WriteChoiceCurves writes P(choose left) per value difference for the data
// and the simulation. Differences missing from one side leave its proportion
// empty and its count zero.
func WriteChoiceCurves(w io.Writer, data, sim *histogram.ChoiceCurve) error {
	diffs := histogram.UnionDiffs(data, sim)
	rows := make([][]string, 0, len(diffs))
	for _, diff := range diffs {
		dp, dn := data.At(diff)
		sp, sn := sim.At(diff)
		rows = append(rows, []string{
			formatFloat(diff),
			proportion(dp, dn),
			formatFloat(dn),
			proportion(sp, sn),
			formatFloat(sn),
		})
	}
	return writeCSV(w, []string{"value_diff", "data_p_left", "data_n", "sim_p_left", "sim_n"}, rows)
}

func proportion(p, n float64) string {
	if n == 0 {
		return ""
	}
	return formatFloat(p)
}

// WriteFile creates path and fills it with write.
func WriteFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
