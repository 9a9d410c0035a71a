package orchestrator

import "fmt"

// StreamState is the runtime state of one stream within a run.
type StreamState string

const (
	StreamPending   StreamState = "PENDING"
	StreamRunning   StreamState = "RUNNING"
	StreamCompleted StreamState = "COMPLETED"
	StreamFailed    StreamState = "FAILED"
)

// IsTerminal reports whether the state is final.
func IsTerminal(s StreamState) bool {
	return s == StreamCompleted || s == StreamFailed
}

// RunState holds per-stream states indexed by stream index.
type RunState []StreamState

func newRunState(n int) RunState {
	st := make(RunState, n)
	for i := range st {
		st[i] = StreamPending
	}
	return st
}

// transition performs a validated transition for stream i. The caller supplies
// the expected prior state so a lost update is reported instead of hidden.
func (st RunState) transition(i int, from, to StreamState) error {
	if i < 0 || i >= len(st) {
		return fmt.Errorf("unknown stream %d", i)
	}
	if cur := st[i]; cur != from {
		return fmt.Errorf("invalid transition for stream %d: expected %s, got %s", i, from, cur)
	}
	if !allowed(from, to) {
		return fmt.Errorf("disallowed transition for stream %d: %s -> %s", i, from, to)
	}
	st[i] = to
	return nil
}

func allowed(from, to StreamState) bool {
	switch from {
	case StreamPending:
		return to == StreamRunning
	case StreamRunning:
		return to == StreamCompleted || to == StreamFailed
	default:
		return false
	}
}
