// Package tracker holds the per-stream stateful stages of the pipeline: the
// complexity tracker and the acceptance gate.
//
// Floating-point note: every product that feeds a sum is wrapped in an explicit
// float64 conversion. Go permits the compiler to fuse x*y+z into a
// single FMA instruction on some architectures; an explicit conversion forces
// rounding and keeps the results bit-identical across platforms.
package tracker

import (
	"math"

	"rnseaudit/internal/core"
)

// InitialComplexity is C_{-1}, the value the smoothing starts from.
const InitialComplexity = 0.5

// WarmupReference is the divergence reference used at t = 0, when no history
// exists: the midpoint of the range of x.
const WarmupReference = 0.5

// Observation is the tracker's output for one tick.
type Observation struct {
	Reference  float64
	D          float64
	Energy     float64
	C          float64
	Reweighted bool
}

// Tracker maintains the smoothed complexity C of one stream.
//
// Update rules:
//
//	ref_t = mean(x over the previous min(t, window) ticks), ref_0 = WarmupReference
//	D_t   = |x_t - ref_t|
//	f_t   = (1-h)*4*(x_t-1/2)^2 + h*D_t
//	C_t   = (1-alpha)*C_{t-1} + alpha*f_t
//
// After every q-th tick C is reweighted against the mean energy of the period:
//
//	C <- clamp01((C + mean(f over the last q ticks)) / 2)
//
// Since x, ref are in [0,1), f is in [0,1] and C stays in [0,1] for every tick.
//
// A Tracker is not safe for concurrent use; each stream owns its own.
type Tracker struct {
	alpha  float64
	h      float64
	q      int
	window int

	c       float64
	history []float64
	next    int
	filled  int

	periodEnergy float64
	periodTicks  int
	ticks        uint64
}

// New creates a tracker for params. Params must already be validated.
func New(p core.Params) *Tracker {
	return &Tracker{
		alpha:   p.Alpha,
		h:       p.StepSize(),
		q:       p.Q,
		window:  p.Window,
		c:       InitialComplexity,
		history: make([]float64, p.Window),
	}
}

// StepSize returns the structural constant h.
func (t *Tracker) StepSize() float64 { return t.h }

// Complexity returns the current C.
func (t *Tracker) Complexity() float64 { return t.c }

// Reference returns the divergence reference for the next tick.
//
// Warm-up policy: with no history the reference is WarmupReference; with fewer
// than window values it is the mean of all available values. The ring buffer is
// summed oldest first so the result does not depend on the write position.
func (t *Tracker) Reference() float64 {
	if t.filled == 0 {
		return WarmupReference
	}
	start := 0
	if t.filled == t.window {
		start = t.next
	}
	var sum float64
	for i := 0; i < t.filled; i++ {
		sum += t.history[(start+i)%t.window]
	}
	return sum / float64(t.filled)
}

// Observe folds the diffused value x of the next tick into the tracker.
func (t *Tracker) Observe(x float64) Observation {
	ref := t.Reference()
	d := math.Abs(x - ref)

	dev := x - 0.5
	energy := float64(float64(1-t.h)*float64(4*dev*dev)) + float64(t.h*d)
	t.c = float64(float64(1-t.alpha)*t.c) + float64(t.alpha*energy)

	t.history[t.next] = x
	t.next = (t.next + 1) % t.window
	if t.filled < t.window {
		t.filled++
	}

	t.periodEnergy += energy
	t.periodTicks++
	t.ticks++

	reweighted := false
	if t.periodTicks == t.q {
		mean := t.periodEnergy / float64(t.q)
		t.c = clamp01((t.c + mean) / 2)
		t.periodEnergy = 0
		t.periodTicks = 0
		reweighted = true
	}

	return Observation{
		Reference:  ref,
		D:          d,
		Energy:     energy,
		C:          t.c,
		Reweighted: reweighted,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
