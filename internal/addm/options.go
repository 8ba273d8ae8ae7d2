// Package addm implements the attentional drift-diffusion model. Drift at
// each step depends on which item is fixated: the fixated item's value enters
// with full weight and the other item's value is discounted by theta.
package addm

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
	"github.com/manvincent/aDDM-Toolbox/internal/models"
)

// Method selects how aDDM likelihoods are computed.
type Method string

const (
	// MethodMonteCarlo simulates paths along the trial's fixation schedule and
	// counts those ending with the observed choice in the observed RT bin.
	MethodMonteCarlo Method = "montecarlo"

	// MethodStateSpace propagates probability mass over the RDV grid with the
	// drift switching at each fixation.
	MethodStateSpace Method = "statespace"
)

// Options configures the aDDM simulator and likelihood engine.
type Options struct {
	TimeStep       int
	Barrier        float64
	MaxSteps       int // step budget per simulated trial attempt
	MaxRestarts    int // aborted attempts allowed per simulated trial
	MaxAttempts    int // fresh streams tried per trial before a batch fails
	StateStep      float64
	NumSimulations int // paths per trial for MethodMonteCarlo
	BinStep        int // RT bin width used to match simulated paths
	Seed           uint64
	Method         Method

	// VisualDelay is the time (ms) at the start of each item fixation
	// before the fixated item drives the drift. MotorDelay is the time
	// (ms) between the barrier crossing and the response. Both default to 0.
	VisualDelay int
	MotorDelay  int
}

// DefaultOptions returns the standard model configuration.
func DefaultOptions() Options {
	return Options{
		TimeStep:       constants.DefaultTimeStep,
		Barrier:        constants.DefaultBarrier,
		MaxSteps:       constants.DefaultMaxSteps,
		MaxRestarts:    constants.DefaultMaxAttempts,
		MaxAttempts:    constants.DefaultBatchRetries,
		StateStep:      constants.DefaultStateStep,
		NumSimulations: constants.DefaultLikelihoodSimulations,
		BinStep:        constants.DefaultBinStep,
		Method:         MethodMonteCarlo,
	}
}

// Validate checks the options for internal consistency.
func (o Options) Validate() error {
	if o.TimeStep <= 0 {
		return fmt.Errorf("time step must be positive, got %d", o.TimeStep)
	}
	if o.Barrier <= 0 {
		return fmt.Errorf("barrier must be positive, got %g", o.Barrier)
	}
	if o.MaxSteps <= 0 || o.MaxRestarts <= 0 || o.MaxAttempts <= 0 {
		return fmt.Errorf("step and attempt budgets must be positive (max steps %d, max restarts %d, max attempts %d)",
			o.MaxSteps, o.MaxRestarts, o.MaxAttempts)
	}
	if o.VisualDelay < 0 || o.MotorDelay < 0 {
		return fmt.Errorf("visual and motor delays must be non-negative, got %d and %d", o.VisualDelay, o.MotorDelay)
	}
	switch o.Method {
	case MethodMonteCarlo:
		if o.NumSimulations <= 0 {
			return fmt.Errorf("number of likelihood simulations must be positive, got %d", o.NumSimulations)
		}
		if o.BinStep <= 0 {
			return fmt.Errorf("bin step must be positive, got %d", o.BinStep)
		}
	case MethodStateSpace:
		if o.StateStep <= 0 || o.StateStep >= o.Barrier {
			return fmt.Errorf("state step must be in (0, barrier), got %g", o.StateStep)
		}
	default:
		return fmt.Errorf("unknown addm likelihood method %q (valid: montecarlo, statespace)", o.Method)
	}
	return nil
}

// drift returns the per-step mean while attending item.
func drift(p models.ParameterSet, item models.FixItem, valueLeft, valueRight float64) float64 {
	switch item {
	case models.FixLeft:
		return p.D * (valueLeft - p.Theta*valueRight)
	case models.FixRight:
		return p.D * (p.Theta*valueLeft - valueRight)
	default:
		return 0
	}
}

// schedule returns the attention schedule a likelihood follows for t. The
// first VisualDelay ms of each item fixation carry no drift, and MotorDelay
// ms come off the last item fixation.
func (o Options) schedule(t models.Trial) []models.Fixation {
	if o.VisualDelay == 0 && o.MotorDelay == 0 {
		return t.Fixations
	}
	out := make([]models.Fixation, 0, 2*len(t.Fixations))
	lastItem := -1
	for _, f := range t.Fixations {
		if !f.Item.IsItem() || o.VisualDelay == 0 {
			if f.Item.IsItem() {
				lastItem = len(out)
			}
			out = append(out, f)
			continue
		}
		out = append(out, models.Fixation{Item: models.FixTransition, Duration: min(o.VisualDelay, f.Duration)})
		lastItem = len(out)
		out = append(out, models.Fixation{Item: f.Item, Duration: max(f.Duration-o.VisualDelay, 0)})
	}
	if lastItem >= 0 {
		out[lastItem].Duration = max(out[lastItem].Duration-o.MotorDelay, 0)
	}
	return out
}

func floorTo(ms, step int) int {
	if ms <= 0 {
		return 0
	}
	return ms - ms%step
}
