// Package constants provides named constants used throughout the toolbox.
// This centralizes model defaults so the simulators, likelihood engines and
// histograms agree on units.
package constants

import "math"

// Simulation constants. Time is measured in milliseconds and the relative
// decision value (RDV) lives between two symmetric barriers.
const (
	// DefaultTimeStep is the duration of one simulation step in milliseconds.
	DefaultTimeStep = 10

	// DefaultBarrier is the magnitude of the decision thresholds.
	DefaultBarrier = 1.0

	// DefaultMaxSteps is the step budget for one simulated trial. A walk that
	// has not crossed a barrier after this many steps is a divergence.
	DefaultMaxSteps = 100000

	// DefaultMaxAttempts bounds how often a simulated aDDM trial is restarted
	// after a crossing during a latency or transition.
	DefaultMaxAttempts = 1000

	// DefaultBatchRetries is how many fresh random streams a batch tries for
	// one trial before giving up on a divergence.
	DefaultBatchRetries = 5

	// DefaultNumFixDists is the number of fixation classes: 1st, 2nd and
	// "3rd and later" item fixations.
	DefaultNumFixDists = 3
)

// Likelihood constants.
const (
	// DefaultStateStep is the spacing of the RDV grid used by the
	// state-space likelihood.
	DefaultStateStep = 0.1

	// DefaultLikelihoodSimulations is the number of simulated paths per trial
	// used by the Monte-Carlo aDDM likelihood.
	DefaultLikelihoodSimulations = 1000

	// MaxSeriesTerms caps the number of terms in the first-passage density series.
	MaxSeriesTerms = 500

	// SeriesTolerance is the truncation error targeted by the density series.
	SeriesTolerance = 1e-10
)

// LogLikelihoodFloor is the log-likelihood assigned to a trial whose
// likelihood is zero. It lies below the log of the smallest positive float64,
// so no representable likelihood scores lower.
var LogLikelihoodFloor = math.Log(math.SmallestNonzeroFloat64) - 1

// TieTolerance is the relative tolerance under which two grid scores are
// considered equal.
const TieTolerance = 1e-9

// Histogram constants.
const (
	// DefaultBinStep is the RT histogram bin width in milliseconds.
	DefaultBinStep = 100

	// DefaultMaxRT is the upper edge (exclusive) of the RT histogram.
	DefaultMaxRT = 8000

	// DefaultFixBinStep is the fixation-duration bin width in milliseconds.
	DefaultFixBinStep = 10

	// DefaultMaxFixBin is the longest fixation duration kept in a
	// fixation distribution, in milliseconds.
	DefaultMaxFixBin = 3000
)

// Estimation constants.
const (
	// DefaultNumThreads is the default size of the grid-search worker pool.
	DefaultNumThreads = 9

	// DefaultTrialsPerCondition is the default number of simulated trials
	// per trial condition.
	DefaultTrialsPerCondition = 800

	// DefaultNumIterations is the default number of fixation-distribution
	// correction passes.
	DefaultNumIterations = 3
)
