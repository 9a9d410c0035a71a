// Package prng implements the deterministic bit-stream generator.
//
// The generator is Marsaglia's xorshift64 with the (13, 7, 17) shift triple.
// It has period 2^64-1 over the non-zero states; zero is its only fixed point
// and is rejected at construction.
//
// There is no package-level generator. Each stream owns one *Stream value and
// is the only goroutine allowed to advance it.
package prng

import (
	"fmt"

	"rnseaudit/internal/core"
)

// Shift amounts of the xorshift64 step. They are part of the conformance
// profile: changing any of them changes every downstream digest.
const (
	ShiftA = 13 // left
	ShiftB = 7  // right
	ShiftC = 17 // left
)

// Step applies one xorshift64 step to state and returns the successor.
//
// Step is a pure function; Step(0) == 0.
func Step(state uint64) uint64 {
	state ^= state << ShiftA
	state ^= state >> ShiftB
	state ^= state << ShiftC
	return state
}

// Stream is the state of one generator instance.
type Stream struct {
	seed  uint64
	state uint64
	ticks uint64
}

// New creates a stream seeded with seed.
//
// It fails with core.ErrInvalidSeed if the seed is the absorbing state.
func New(seed uint64) (*Stream, error) {
	if err := ValidateSeed(seed); err != nil {
		return nil, err
	}
	return &Stream{seed: seed, state: seed}, nil
}

// ValidateSeed reports whether seed can start a stream.
func ValidateSeed(seed uint64) error {
	if seed == 0 || Step(seed) == seed {
		return fmt.Errorf("%w: %#016x is the generator's absorbing state", core.ErrInvalidSeed, seed)
	}
	return nil
}

// Advance steps the generator once and returns the new register value.
func (s *Stream) Advance() uint64 {
	s.state = Step(s.state)
	s.ticks++
	return s.state
}

// Seed returns the originating seed.
func (s *Stream) Seed() uint64 { return s.seed }

// State returns the current register.
func (s *Stream) State() uint64 { return s.state }

// Ticks returns how many times the stream has advanced.
func (s *Stream) Ticks() uint64 { return s.ticks }
