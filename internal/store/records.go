package store

import (
	"encoding/json"
	"math"

	"github.com/manvincent/aDDM-Toolbox/internal/estimate"
	"github.com/manvincent/aDDM-Toolbox/internal/fixation"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// ScoresFromResult converts an estimation result into grid score rows.
func ScoresFromResult(res *estimate.Result) []GridScore {
	out := make([]GridScore, len(res.Points))
	for i, p := range res.Points {
		out[i] = GridScore{
			Index:         i,
			Params:        p,
			LogLikelihood: res.LogLikelihoods[i],
			Score:         res.Scores[i],
		}
		if res.LogPriors != nil {
			out[i].LogPrior = res.LogPriors[i]
		}
	}
	return out
}

// BinsFromData converts the fixation distributions of data into bin rows.
// Empty bins are skipped.
func BinsFromData(data *fixation.Data) []FixationBin {
	var out []FixationBin
	for _, key := range data.Keys() {
		dist, _ := data.Distribution(key)
		for k, m := range dist.Mass {
			if m == 0 {
				continue
			}
			out = append(out, FixationBin{
				FixNumber: key.FixNumber,
				ValueDiff: key.ValueDiff,
				Bin:       k,
				Lower:     dist.Binning.Lower(k),
				Mass:      m,
			})
		}
	}
	return out
}

type gridScoreJSON struct {
	Index         int                 `json:"index"`
	Params        models.ParameterSet `json:"params"`
	LogLikelihood *float64            `json:"log_likelihood"`
	LogPrior      *float64            `json:"log_prior"`
	Score         *float64            `json:"score"`
}

// MarshalJSON writes non-finite values as null.
func (g GridScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(gridScoreJSON{
		Index:         g.Index,
		Params:        g.Params,
		LogLikelihood: finitePtr(g.LogLikelihood),
		LogPrior:      finitePtr(g.LogPrior),
		Score:         finitePtr(g.Score),
	})
}

// UnmarshalJSON reads null scores back as negative infinity.
func (g *GridScore) UnmarshalJSON(data []byte) error {
	var raw gridScoreJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GridScore{Index: raw.Index, Params: raw.Params}
	g.LogLikelihood = derefOr(raw.LogLikelihood, math.Inf(-1))
	g.LogPrior = derefOr(raw.LogPrior, 0)
	g.Score = derefOr(raw.Score, math.Inf(-1))
	return nil
}

func finitePtr(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
