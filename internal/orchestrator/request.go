package orchestrator

import (
	"errors"
	"fmt"

	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
	"rnseaudit/internal/prng"
)

// Request is one invocation of the engine.
type Request struct {
	// Seeds holds one seed per stream. Stream i uses Seeds[i].
	Seeds []uint64
	// Ticks is the number of ticks per stream.
	Ticks  int
	Params core.Params
	// BatchSize is the Merkle batch size R. Zero disables commitment.
	BatchSize int
	// Policy decides what happens with a partial last batch.
	Policy merkle.PadPolicy
}

// Validate checks the whole request before any generation starts.
//
// Params problems are reported together; the first invalid seed and the first
// repeated seed are reported with their stream index. Seeds must be distinct
// because the log identifies a stream only by its seed.
func (r Request) Validate() error {
	var errs []error
	if len(r.Seeds) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one seed is required", core.ErrInvalidParams))
	}
	if r.Ticks < 0 {
		errs = append(errs, fmt.Errorf("%w: ticks must be >= 0 (got %d)", core.ErrInvalidParams, r.Ticks))
	}
	if r.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("%w: batch size must be >= 0 (got %d)", core.ErrInvalidParams, r.BatchSize))
	}
	if _, err := merkle.ParsePadPolicy(string(r.Policy)); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", core.ErrInvalidParams, err))
	}
	if err := r.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	for i, seed := range r.Seeds {
		if err := prng.ValidateSeed(seed); err != nil {
			errs = append(errs, core.StreamError(i, seed, err))
			break
		}
	}
	if i, j, ok := core.DuplicateSeed(r.Seeds); ok {
		errs = append(errs, core.StreamError(j, r.Seeds[j],
			fmt.Errorf("%w: streams %d and %d share seed %#016x", core.ErrInvalidSeed, i, j, r.Seeds[j])))
	}
	return errors.Join(errs...)
}

// Streams returns the number of streams.
func (r Request) Streams() int { return len(r.Seeds) }
