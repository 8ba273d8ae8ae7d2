// Package randutil derives reproducible random streams from a run seed.
//
// Every simulated trial and every stochastic likelihood estimate draws from
// its own stream, identified by the run seed plus a tuple of indices
// (condition, trial, grid point, ...). Streams are independent of scheduling,
// so results do not depend on which worker ran which task.
package randutil

import (
	"math/rand/v2"
	"time"
)

// New returns a generator for the stream identified by seed and indices.
func New(seed uint64, indices ...int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, Stream(indices...)))
}

// Stream folds indices into a single 64-bit stream id.
func Stream(indices ...int) uint64 {
	h := uint64(0x6a09e667f3bcc909)
	for _, i := range indices {
		h = splitmix(h ^ uint64(i))
	}
	return h
}

// Derive returns a child seed for a sub-run, e.g. one correction iteration.
func Derive(seed uint64, indices ...int) uint64 {
	return splitmix(seed ^ Stream(indices...))
}

// ClockSeed returns a non-zero seed taken from the wall clock.
func ClockSeed() uint64 {
	s := splitmix(uint64(time.Now().UnixNano()))
	if s == 0 {
		s = 1
	}
	return s
}

// Resolve returns seed, or a clock seed when seed is zero.
func Resolve(seed uint64) uint64 {
	if seed == 0 {
		return ClockSeed()
	}
	return seed
}

func splitmix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
