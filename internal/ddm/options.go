// Package ddm implements the drift-diffusion model: a discrete-time trial
// simulator and likelihood functions for observed (choice, RT) pairs.
//
// The relative decision value (RDV) starts at zero and moves by a Gaussian
// increment every time step. Crossing +Barrier selects the left item,
// crossing -Barrier selects the right item.
package ddm

import (
	"fmt"

	"github.com/manvincent/aDDM-Toolbox/internal/constants"
)

// Method selects how DDM likelihoods are computed.
type Method string

const (
	// MethodStateSpace propagates probability mass over a discretized RDV
	// grid with the same time step as the simulator.
	MethodStateSpace Method = "statespace"

	// MethodAnalytic evaluates the first-passage density of the continuous
	// Wiener process.
	MethodAnalytic Method = "analytic"
)

// Options configures the simulator and the likelihood engine.
type Options struct {
	TimeStep    int     // milliseconds per step
	Barrier     float64 // magnitude of both thresholds
	MaxSteps    int     // step budget per simulated trial
	MaxAttempts int     // fresh streams tried per trial before a batch fails
	StateStep   float64 // RDV grid spacing for MethodStateSpace
	Method      Method
}

// DefaultOptions returns the standard model configuration.
func DefaultOptions() Options {
	return Options{
		TimeStep:    constants.DefaultTimeStep,
		Barrier:     constants.DefaultBarrier,
		MaxSteps:    constants.DefaultMaxSteps,
		MaxAttempts: constants.DefaultBatchRetries,
		StateStep:   constants.DefaultStateStep,
		Method:      MethodStateSpace,
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
	if o.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive, got %d", o.MaxSteps)
	}
	if o.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", o.MaxAttempts)
	}
	switch o.Method {
	case MethodStateSpace:
		if o.StateStep <= 0 || o.StateStep >= o.Barrier {
			return fmt.Errorf("state step must be in (0, barrier), got %g", o.StateStep)
		}
	case MethodAnalytic:
	default:
		return fmt.Errorf("unknown ddm likelihood method %q (valid: statespace, analytic)", o.Method)
	}
	return nil
}
