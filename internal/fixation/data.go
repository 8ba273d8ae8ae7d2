package fixation

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/histogram"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// Options controls how fixations are binned and pooled.
type Options struct {
	TimeStep    int // durations below one time step are dropped
	BinStep     int
	MaxFixBin   int // durations above this are dropped from empirical data
	NumFixDists int // fixation numbers at or above this share a distribution
}

// DefaultOptions returns the standard binning.
func DefaultOptions() Options {
	return Options{
		TimeStep:    constants.DefaultTimeStep,
		BinStep:     constants.DefaultFixBinStep,
		MaxFixBin:   constants.DefaultMaxFixBin,
		NumFixDists: constants.DefaultNumFixDists,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.TimeStep <= 0 || o.BinStep <= 0 {
		return fmt.Errorf("time step and bin step must be positive (got %d, %d)", o.TimeStep, o.BinStep)
	}
	if o.MaxFixBin < o.BinStep {
		return fmt.Errorf("max fixation bin %d is smaller than the bin step %d", o.MaxFixBin, o.BinStep)
	}
	if o.NumFixDists < 1 {
		return fmt.Errorf("number of fixation distributions must be at least 1, got %d", o.NumFixDists)
	}
	return nil
}

// Binning returns the fixation-duration binning.
func (o Options) Binning() histogram.Binning {
	return histogram.Binning{Step: o.BinStep, Max: o.MaxFixBin}
}

func (o Options) pool(fixNumber int) int {
	return min(fixNumber, o.NumFixDists)
}

func (o Options) keep(duration int) bool {
	return duration >= o.TimeStep && duration <= o.MaxFixBin
}

// Data is the fixation process used to simulate aDDM trials: the chance of
// looking left first, latencies before the first item fixation, transitions
// between item fixations and the item-fixation duration distributions.
// Data is immutable; corrections return a new value.
type Data struct {
	opts          Options
	probLeftFirst float64
	latencies     []int
	transitions   []int
	fixations     map[Key]*Distribution

	// empirical holds the uncorrected non-last distributions and
	// observedLast the observed last fixations, both kept for correction.
	empirical    map[Key]*Distribution
	observedLast map[Key]*Distribution
}

// Build collects fixation statistics from observed trials. Trials with at
// most one item fixation are skipped. The last item fixation of a trial and
// anything after it never enter the empirical distributions.
func Build(ds *models.Dataset, opts Options) (*Data, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixation options: %w", err)
	}
	binning := opts.Binning()
	d := &Data{
		opts:         opts,
		fixations:    make(map[Key]*Distribution),
		observedLast: make(map[Key]*Distribution),
	}
	get := func(m map[Key]*Distribution, k Key) *Distribution {
		dist, ok := m[k]
		if !ok {
			dist = NewDistribution(binning)
			m[k] = dist
		}
		return dist
	}

	leftFirst, total := 0, 0
	for _, t := range ds.All() {
		if t.ItemFixationCount() <= 1 {
			continue
		}
		last := t.LastItemFixation()
		latency := 0
		fixNumber := 0
		for _, f := range t.Fixations[:last] {
			if !f.Item.IsItem() {
				if fixNumber == 0 {
					latency += f.Duration
				} else if opts.keep(f.Duration) {
					d.transitions = append(d.transitions, f.Duration)
				}
				continue
			}
			fixNumber++
			if fixNumber == 1 {
				d.latencies = append(d.latencies, latency)
				total++
				if f.Item == models.FixLeft {
					leftFirst++
				}
			}
			if opts.keep(f.Duration) {
				key := Key{FixNumber: opts.pool(fixNumber), ValueDiff: t.FixatedValueDiff(f.Item)}
				get(d.fixations, key).Add(f.Duration)
			}
		}

		lf := t.Fixations[last]
		if lf.Duration >= opts.TimeStep {
			key := Key{FixNumber: opts.pool(fixNumber + 1), ValueDiff: t.FixatedValueDiff(lf.Item)}
			get(d.observedLast, key).Add(lf.Duration)
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no trial has more than one item fixation", ErrNoFixations)
	}
	d.probLeftFirst = float64(leftFirst) / float64(total)
	d.empirical = cloneAll(d.fixations)
	return d, nil
}

// NewData assembles fixation data from precomputed parts, e.g. distributions
// restored from a stored run.
func NewData(opts Options, probLeftFirst float64, latencies, transitions []int, dists map[Key]*Distribution) (*Data, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixation options: %w", err)
	}
	if probLeftFirst < 0 || probLeftFirst > 1 {
		return nil, fmt.Errorf("probability of left first must be in [0, 1], got %g", probLeftFirst)
	}
	return &Data{
		opts:          opts,
		probLeftFirst: probLeftFirst,
		latencies:     slices.Clone(latencies),
		transitions:   slices.Clone(transitions),
		fixations:     cloneAll(dists),
		empirical:     cloneAll(dists),
		observedLast:  make(map[Key]*Distribution),
	}, nil
}

// withFixations returns a copy of d sampling from dists.
func (d *Data) withFixations(dists map[Key]*Distribution) *Data {
	cp := *d
	cp.fixations = dists
	return &cp
}

// Options returns the binning options.
func (d *Data) Options() Options { return d.opts }

// ProbLeftFirst returns the probability that the first item fixation is left.
func (d *Data) ProbLeftFirst() float64 { return d.probLeftFirst }

// Latencies returns a copy of the observed latencies.
func (d *Data) Latencies() []int { return slices.Clone(d.latencies) }

// Transitions returns a copy of the observed transitions.
func (d *Data) Transitions() []int { return slices.Clone(d.transitions) }

// Keys returns the distribution keys in order.
func (d *Data) Keys() []Key {
	keys := make([]Key, 0, len(d.fixations))
	for k := range d.fixations {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// Distribution returns a copy of the distribution for key.
func (d *Data) Distribution(key Key) (*Distribution, bool) {
	dist, ok := d.fixations[key]
	if !ok {
		return nil, false
	}
	return dist.Clone(), true
}

// Empirical returns a copy of the uncorrected distribution for key.
func (d *Data) Empirical(key Key) (*Distribution, bool) {
	dist, ok := d.empirical[key]
	if !ok {
		return nil, false
	}
	return dist.Clone(), true
}

// SampleLatency draws an observed latency, or zero if none were observed.
func (d *Data) SampleLatency(rng *rand.Rand) int {
	return pickInt(rng, d.latencies)
}

// SampleTransition draws an observed transition, or zero if none were
// observed.
func (d *Data) SampleTransition(rng *rand.Rand) int {
	return pickInt(rng, d.transitions)
}

// SampleFixation draws an item fixation duration.
func (d *Data) SampleFixation(rng *rand.Rand, fixNumber int, valueDiff float64) (int, error) {
	key := Key{FixNumber: d.opts.pool(fixNumber), ValueDiff: valueDiff}
	dist, ok := d.fixations[key]
	if !ok {
		return 0, fmt.Errorf("%w for %s", ErrNoFixations, key)
	}
	dur, err := dist.Sample(rng)
	if err != nil {
		return 0, fmt.Errorf("%w for %s", err, key)
	}
	return dur, nil
}

func pickInt(rng *rand.Rand, xs []int) int {
	if len(xs) == 0 {
		return 0
	}
	return xs[rng.IntN(len(xs))]
}

func cloneAll(m map[Key]*Distribution) map[Key]*Distribution {
	out := make(map[Key]*Distribution, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
