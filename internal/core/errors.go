package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the engine matches exactly one of these
// with errors.Is.
var (
	ErrInvalidSeed           = errors.New("invalid seed")
	ErrInvalidParams         = errors.New("invalid params")
	ErrRecorderWriteFailure  = errors.New("recorder write failure")
	ErrMerkleBatchIncomplete = errors.New("merkle batch incomplete")
)

// NoTick marks a TickError raised before the first tick was generated.
const NoTick int64 = -1

// TickError carries the context needed to reproduce a failure: the stream, its
// seed and the tick index at which it happened.
type TickError struct {
	Stream int
	Seed   uint64
	Tick   int64
	Err    error
}

func (e *TickError) Error() string {
	if e == nil {
		return ""
	}
	if e.Tick == NoTick {
		return fmt.Sprintf("stream %d (seed %#016x): %v", e.Stream, e.Seed, e.Err)
	}
	return fmt.Sprintf("stream %d (seed %#016x) tick %d: %v", e.Stream, e.Seed, e.Tick, e.Err)
}

func (e *TickError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StreamError wraps err with stream context before any tick was produced.
func StreamError(stream int, seed uint64, err error) error {
	return &TickError{Stream: stream, Seed: seed, Tick: NoTick, Err: err}
}
