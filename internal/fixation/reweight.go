package fixation

import "gonum.org/v1/gonum/floats"

// ReweightStats summarizes one reweighting pass.
type ReweightStats struct {
	Bins                int `json:"bins"`
	ZeroObservationBins int `json:"zero_observation_bins"`
}

func (s *ReweightStats) add(o ReweightStats) {
	s.Bins += o.Bins
	s.ZeroObservationBins += o.ZeroObservationBins
}

// Factors returns the correction factor 1 - last/total for each of n bins. A
// bin with no observations gets factor 1 and is counted. Either distribution
// may be nil.
func Factors(n int, last, total *Distribution) ([]float64, ReweightStats) {
	factors := make([]float64, n)
	stats := ReweightStats{Bins: n}
	for k := range factors {
		tot := massAt(total, k)
		if tot <= 0 {
			factors[k] = 1
			stats.ZeroObservationBins++
			continue
		}
		factors[k] = 1 - massAt(last, k)/tot
	}
	return factors, stats
}

// Divide returns empirical mass divided bin by bin by factors, before
// normalization. A non-positive factor leaves the bin's mass unchanged.
func Divide(empirical *Distribution, factors []float64) *Distribution {
	out := empirical.Clone()
	for k, f := range factors {
		if f > 0 {
			out.Mass[k] /= f
		}
	}
	return out
}

// Reweight corrects one empirical distribution for truncation: each bin is
// divided by the probability that a fixation of that duration was not the
// last one, then the result is normalized.
func Reweight(empirical, last, total *Distribution) (*Distribution, ReweightStats) {
	factors, stats := Factors(len(empirical.Mass), last, total)
	return Divide(empirical, factors).Normalized(), stats
}

// ReweightAll applies Reweight to every empirical key.
func ReweightAll(empirical, last, total map[Key]*Distribution) (map[Key]*Distribution, ReweightStats) {
	out := make(map[Key]*Distribution, len(empirical))
	var stats ReweightStats
	for k, emp := range empirical {
		corrected, s := Reweight(emp, last[k], total[k])
		out[k] = corrected
		stats.add(s)
	}
	return out, stats
}

// sumInto returns a+b bin by bin over the keys of either map.
func sumInto(a, b map[Key]*Distribution) map[Key]*Distribution {
	out := cloneAll(a)
	for k, d := range b {
		if cur, ok := out[k]; ok {
			floats.Add(cur.Mass, d.Mass)
		} else {
			out[k] = d.Clone()
		}
	}
	return out
}

func massAt(d *Distribution, k int) float64 {
	if d == nil || k >= len(d.Mass) {
		return 0
	}
	return d.Mass[k]
}
