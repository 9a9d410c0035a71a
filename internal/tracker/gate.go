package tracker

import (
	"fmt"
	"math"
)

// Decision is the gate state of a single tick.
//
//	PENDING -> ACCEPTED | REJECTED
//
// ACCEPTED and REJECTED are terminal.
type Decision string

const (
	Pending  Decision = "PENDING"
	Accepted Decision = "ACCEPTED"
	Rejected Decision = "REJECTED"
)

// IsTerminal reports whether the decision is final.
func IsTerminal(d Decision) bool {
	switch d {
	case Accepted, Rejected:
		return true
	default:
		return false
	}
}

// Transition validates a gate transition.
//
// The caller supplies the current state to make misuse observable; only
// PENDING may move, and only to a terminal state.
func Transition(from, to Decision) error {
	if from != Pending {
		return fmt.Errorf("disallowed gate transition: %s -> %s", from, to)
	}
	if !IsTerminal(to) {
		return fmt.Errorf("disallowed gate transition: %s -> %s", from, to)
	}
	return nil
}

// Gate is the acceptance threshold test. It is a pure per-tick decision with no
// side effects on generator or tracker state.
type Gate struct {
	tau float64
}

// NewGate creates a gate with threshold tau.
func NewGate(tau float64) Gate { return Gate{tau: tau} }

// Tau returns the threshold.
func (g Gate) Tau() float64 { return g.tau }

// Decide accepts iff d < tau.
//
// A negative or NaN divergence is an invariant violation of the tracker and is
// returned as an error rather than silently rejected.
func (g Gate) Decide(d float64) (Decision, error) {
	if math.IsNaN(d) || d < 0 {
		return Pending, fmt.Errorf("invariant violation: divergence %v is not >= 0", d)
	}
	next := Rejected
	if d < g.tau {
		next = Accepted
	}
	if err := Transition(Pending, next); err != nil {
		return Pending, err
	}
	return next, nil
}
