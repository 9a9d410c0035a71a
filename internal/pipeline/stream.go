// Package pipeline wires the per-stream stages together:
//
//	Generator -> SPN -> Resolver -> Tracker -> Gate
//
// A Stream is fully self-contained. It shares no mutable state with any other
// stream, so N streams can run on N goroutines without synchronization.
package pipeline

import (
	"context"
	"fmt"

	"rnseaudit/internal/core"
	"rnseaudit/internal/prng"
	"rnseaudit/internal/resolver"
	"rnseaudit/internal/spn"
	"rnseaudit/internal/tracker"
)

// cancelCheckInterval is how many ticks run between context checks.
const cancelCheckInterval = 1024

// Stream generates the tick records of one stream.
type Stream struct {
	index   int
	params  core.Params
	gen     *prng.Stream
	tracker *tracker.Tracker
	gate    tracker.Gate
	tick    uint64
}

// New validates seed and params and creates a stream.
//
// Validation happens here, before any record exists, so a bad seed or bad
// params can never produce a partial log.
func New(index int, seed uint64, p core.Params) (*Stream, error) {
	if err := p.Validate(); err != nil {
		return nil, core.StreamError(index, seed, err)
	}
	gen, err := prng.New(seed)
	if err != nil {
		return nil, core.StreamError(index, seed, err)
	}
	return &Stream{
		index:   index,
		params:  p,
		gen:     gen,
		tracker: tracker.New(p),
		gate:    tracker.NewGate(p.Tau),
	}, nil
}

// Index returns the stream's merge index.
func (s *Stream) Index() int { return s.index }

// Seed returns the stream's seed.
func (s *Stream) Seed() uint64 { return s.gen.Seed() }

// Next produces the record of the next tick.
func (s *Stream) Next() (core.TickRecord, error) {
	t := s.tick
	raw := s.gen.Advance()
	x := spn.Scalar(raw)
	h := s.tracker.StepSize()

	res := resolver.Resolve(resolver.Input{Tick: t, X: x, H: h, Params: s.params})
	obs := s.tracker.Observe(x)

	decision, err := s.gate.Decide(obs.D)
	if err != nil {
		return core.TickRecord{}, &core.TickError{Stream: s.index, Seed: s.gen.Seed(), Tick: int64(t), Err: err}
	}

	s.tick++
	return core.TickRecord{
		Stream:   s.index,
		T:        t,
		Seed:     s.gen.Seed(),
		Params:   s.params,
		C:        obs.C,
		Accepted: decision == tracker.Accepted,
		X:        x,
		H:        h,
		D:        obs.D,
		W:        res.Weights,
		Interp:   res.Label,
		Noise:    x - spn.Normalize(raw),
	}, nil
}

// Run produces exactly ticks records into a private buffer.
//
// The context is consulted between ticks only. A cancelled run returns no
// records at all.
func (s *Stream) Run(ctx context.Context, ticks int) ([]core.TickRecord, error) {
	if ticks < 0 {
		return nil, core.StreamError(s.index, s.gen.Seed(), fmt.Errorf("%w: ticks must be >= 0 (got %d)", core.ErrInvalidParams, ticks))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	out := make([]core.TickRecord, 0, ticks)
	for i := 0; i < ticks; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &core.TickError{Stream: s.index, Seed: s.gen.Seed(), Tick: int64(i), Err: fmt.Errorf("stream aborted: %w", err)}
			}
		}
		rec, err := s.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
