package merkle

import (
	"errors"
	"fmt"

	"rnseaudit/internal/core"
)

// PadPolicy decides what Finalize does with a partial last batch.
type PadPolicy string

const (
	// Strict refuses to commit a partial batch and reports
	// core.ErrMerkleBatchIncomplete. Full batches stay committed.
	Strict PadPolicy = "strict"
	// PadFinal fills the partial batch with PadLeaf values up to the batch size.
	PadFinal PadPolicy = "pad"
)

// ParsePadPolicy parses a policy name.
func ParsePadPolicy(s string) (PadPolicy, error) {
	switch PadPolicy(s) {
	case Strict, PadFinal:
		return PadPolicy(s), nil
	case "":
		return Strict, nil
	default:
		return "", fmt.Errorf("unknown pad policy %q (expected strict|pad)", s)
	}
}

// Batch is one committed batch. It is immutable once emitted.
type Batch struct {
	Index int `json:"index"`
	// Records is the number of real records in the batch.
	Records int `json:"records"`
	// Padding is the number of pad leaves appended (PadFinal only).
	Padding int  `json:"padding,omitempty"`
	Root    Hash `json:"root"`
	// Head is the running head after this batch.
	Head Hash `json:"head"`
}

// Committer consumes serialized records in log order and emits one root per R
// records.
//
// A Committer is a single writer: it must be fed from the finalized, merged log
// and is not safe for concurrent use.
type Committer struct {
	size      int
	policy    PadPolicy
	pending   []Hash
	batches   []Batch
	head      Hash
	finalized bool
}

// NewCommitter creates a committer with batch size r.
func NewCommitter(r int, policy PadPolicy) (*Committer, error) {
	if r <= 0 {
		return nil, fmt.Errorf("%w: merkle batch size must be > 0 (got %d)", core.ErrInvalidParams, r)
	}
	if policy == "" {
		policy = Strict
	}
	if _, err := ParsePadPolicy(string(policy)); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidParams, err)
	}
	return &Committer{
		size:    r,
		policy:  policy,
		pending: make([]Hash, 0, r),
		head:    GenesisHead(),
	}, nil
}

// BatchSize returns R.
func (c *Committer) BatchSize() int { return c.size }

// Add consumes the next serialized record. When it completes a batch, the new
// batch is returned.
func (c *Committer) Add(line []byte) (*Batch, error) {
	if c.finalized {
		return nil, errors.New("add after finalize")
	}
	c.pending = append(c.pending, LeafHash(line))
	if len(c.pending) < c.size {
		return nil, nil
	}
	b, err := c.commit(len(c.pending), 0)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Committer) commit(records, padding int) (Batch, error) {
	root, err := Root(c.pending)
	if err != nil {
		return Batch{}, err
	}
	c.head = ChainHead(c.head, root)
	b := Batch{
		Index:   len(c.batches),
		Records: records,
		Padding: padding,
		Root:    root,
		Head:    c.head,
	}
	c.batches = append(c.batches, b)
	c.pending = c.pending[:0]
	return b, nil
}

// Finalize closes the committer.
//
// With no pending records it always succeeds. With a partial batch, Strict
// returns an error matching core.ErrMerkleBatchIncomplete together with the
// batches committed so far; PadFinal pads and commits it. Nothing is ever
// silently truncated.
func (c *Committer) Finalize() ([]Batch, Hash, error) {
	if !c.finalized {
		c.finalized = true
		if n := len(c.pending); n > 0 && c.policy == PadFinal {
			for pos := n; pos < c.size; pos++ {
				c.pending = append(c.pending, PadLeaf(uint64(pos)))
			}
			if _, err := c.commit(n, c.size-n); err != nil {
				return c.Batches(), c.head, err
			}
		}
	}
	if n := len(c.pending); n > 0 {
		return c.Batches(), c.head, fmt.Errorf("%w: %d of %d records in final batch %d",
			core.ErrMerkleBatchIncomplete, n, c.size, len(c.batches))
	}
	return c.Batches(), c.head, nil
}

// Batches returns a copy of the committed batches.
func (c *Committer) Batches() []Batch {
	return append([]Batch(nil), c.batches...)
}

// Head returns the running head.
func (c *Committer) Head() Hash { return c.head }

// Commitment is the publishable result of committing a whole log.
type Commitment struct {
	BatchSize int       `json:"batch_size"`
	Policy    PadPolicy `json:"policy"`
	Batches   []Batch   `json:"batches"`
	Head      Hash      `json:"head"`
}

// Roots returns the batch roots in order.
func (c Commitment) Roots() []Hash {
	out := make([]Hash, len(c.Batches))
	for i, b := range c.Batches {
		out[i] = b.Root
	}
	return out
}

// Commit runs a committer over lines.
//
// On ErrMerkleBatchIncomplete the returned Commitment still carries the full
// batches so callers may publish them.
func Commit(lines [][]byte, r int, policy PadPolicy) (Commitment, error) {
	c, err := NewCommitter(r, policy)
	if err != nil {
		return Commitment{}, err
	}
	for _, l := range lines {
		if _, err := c.Add(l); err != nil {
			return Commitment{}, err
		}
	}
	batches, head, err := c.Finalize()
	return Commitment{BatchSize: r, Policy: c.policy, Batches: batches, Head: head}, err
}

// BatchLeaves returns the leaf hashes of batch index within lines, including
// pad leaves when the commitment padded it.
func BatchLeaves(lines [][]byte, c Commitment, index int) ([]Hash, error) {
	if index < 0 || index >= len(c.Batches) {
		return nil, fmt.Errorf("batch %d out of range [0,%d)", index, len(c.Batches))
	}
	start := index * c.BatchSize
	b := c.Batches[index]
	if start+b.Records > len(lines) {
		return nil, fmt.Errorf("batch %d needs records up to %d, log has %d", index, start+b.Records, len(lines))
	}
	leaves := make([]Hash, 0, b.Records+b.Padding)
	for _, l := range lines[start : start+b.Records] {
		leaves = append(leaves, LeafHash(l))
	}
	for pos := b.Records; pos < b.Records+b.Padding; pos++ {
		leaves = append(leaves, PadLeaf(uint64(pos)))
	}
	return leaves, nil
}

// VerifyBatch recomputes batch index from lines and compares it with the
// committed root.
func VerifyBatch(lines [][]byte, c Commitment, index int) (bool, error) {
	leaves, err := BatchLeaves(lines, c, index)
	if err != nil {
		return false, err
	}
	root, err := Root(leaves)
	if err != nil {
		return false, err
	}
	return root == c.Batches[index].Root, nil
}
