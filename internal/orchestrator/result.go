package orchestrator

import (
	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
)

// Result is the deterministic outcome of a run.
type Result struct {
	// Log is the merged canonical audit log.
	Log []byte
	// Digest is the hex SHA-256 of Log.
	Digest string
	// Lines are the log lines without newlines, in log order.
	Lines [][]byte
	// Records holds the records of each stream, indexed by stream.
	Records [][]core.TickRecord
	// Commitment is nil when the request had no batch size.
	Commitment *merkle.Commitment
	// FinalState is the terminal state of each stream.
	FinalState RunState

	Accepted int
	Rejected int
}

// AcceptanceRate returns the fraction of accepted ticks, or 0 for an empty run.
func (r *Result) AcceptanceRate() float64 {
	total := r.Accepted + r.Rejected
	if total == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(total)
}
