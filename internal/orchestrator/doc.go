// Package orchestrator runs N independent stream pipelines and merges their
// records into one audit log.
//
// Execution is split into three phases:
//   - validation of every seed and the params, before any record exists;
//   - generation, one goroutine per stream, each into a private buffer;
//   - a merge barrier, after which a single writer appends all records to the
//     audit Recorder in (stream, tick) order and feeds the Merkle committer.
//
// The merged log is therefore a pure function of (seeds, ticks, params). The
// number of goroutines and their completion order never reach it.
package orchestrator
