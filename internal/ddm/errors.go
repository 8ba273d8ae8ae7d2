package ddm

import (
	"errors"
	"fmt"
)

// ErrSimulationDivergence reports a simulated trial that never crossed a
// barrier within its budget.
var ErrSimulationDivergence = errors.New("simulation diverged")

// DivergenceError carries the budget that was exhausted. It unwraps to
// ErrSimulationDivergence.
type DivergenceError struct {
	Steps    int // steps taken without a crossing
	Attempts int // restarts consumed, for models that restart trials
}

func (e *DivergenceError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%v: no barrier crossing after %d attempts", ErrSimulationDivergence, e.Attempts)
	}
	return fmt.Sprintf("%v: no barrier crossing after %d steps", ErrSimulationDivergence, e.Steps)
}

func (e *DivergenceError) Unwrap() error {
	return ErrSimulationDivergence
}
