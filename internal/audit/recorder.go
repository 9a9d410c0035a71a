package audit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"rnseaudit/internal/core"
)

type entry struct {
	key  core.MergeKey
	line []byte
}

// Recorder is the append-only, order-normalizing audit log builder.
//
// Concurrency note:
// Append is safe for concurrent use, but the output never depends on the order
// of Append calls: Finalize sorts all entries by (stream, tick) before any byte
// is emitted. Writing records "as each goroutine finishes" is therefore
// impossible through this type.
//
// The only operations are Append and Finalize. Records are encoded at Append
// time, so an unencodable record is rejected before it enters the log, and no
// entry can be edited once appended.
type Recorder struct {
	mu        sync.Mutex
	entries   []entry
	seen      map[core.MergeKey]struct{}
	sink      io.Writer
	finalized bool
	out       []byte
	lines     [][]byte
	err       error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSink makes Finalize write the finalized log to w.
func WithSink(w io.Writer) Option {
	return func(r *Recorder) { r.sink = w }
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{seen: make(map[core.MergeKey]struct{})}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append adds rec to the log.
//
// It fails if the recorder is finalized, if a record with the same
// (stream, tick) key was already appended, or if the record is not encodable.
func (r *Recorder) Append(rec core.TickRecord) error {
	if r == nil {
		return errors.New("nil Recorder")
	}
	line, err := EncodeRecord(rec)
	if err != nil {
		return &core.TickError{Stream: rec.Stream, Seed: rec.Seed, Tick: int64(rec.T), Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("append after finalize (stream %d tick %d)", rec.Stream, rec.T)
	}
	key := rec.Key()
	if _, dup := r.seen[key]; dup {
		return fmt.Errorf("duplicate record for stream %d tick %d", key.Stream, key.Tick)
	}
	r.seen[key] = struct{}{}
	r.entries = append(r.entries, entry{key: key, line: line})
	return nil
}

// Len returns the number of appended records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Finalize sorts, serializes and seals the log.
//
// Finalize is idempotent: later calls return the same bytes (or the same error)
// without re-sorting or re-writing. A sink write failure is fatal: the error
// matches core.ErrRecorderWriteFailure and is never retried with altered state.
func (r *Recorder) Finalize() ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil Recorder")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		if r.err != nil {
			return nil, r.err
		}
		return clone(r.out), nil
	}
	r.finalized = true

	sort.Slice(r.entries, func(i, j int) bool {
		return r.entries[i].key.Less(r.entries[j].key)
	})

	var buf bytes.Buffer
	lines := make([][]byte, 0, len(r.entries))
	for _, e := range r.entries {
		buf.Write(e.line)
		buf.WriteByte('\n')
		lines = append(lines, e.line)
	}
	r.out = buf.Bytes()
	r.lines = lines

	if r.sink != nil {
		n, err := r.sink.Write(r.out)
		if err == nil && n != len(r.out) {
			err = io.ErrShortWrite
		}
		if err != nil {
			r.err = fmt.Errorf("%w: wrote %d of %d bytes: %w", core.ErrRecorderWriteFailure, n, len(r.out), err)
			return nil, r.err
		}
	}
	return clone(r.out), nil
}

// Lines returns the finalized lines (without newlines) in log order.
// It returns nil before a successful Finalize.
func (r *Recorder) Lines() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized || r.err != nil {
		return nil
	}
	out := make([][]byte, len(r.lines))
	for i, l := range r.lines {
		out[i] = clone(l)
	}
	return out
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
