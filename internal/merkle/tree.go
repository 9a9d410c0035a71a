// Package merkle builds the batch commitments over the audit log.
//
// Tree profile (rnse-audit/1):
//
//	leaf       = SHA-256(0x00 || line)            line without its trailing newline
//	node       = SHA-256(0x01 || left || right)
//	lone node  = SHA-256(0x02 || child)           odd node at the end of a level
//	pad leaf   = SHA-256(0x03 || PadTag || u64be(position in batch))
//	head_0     = SHA-256(HeadTag)
//	head_k     = SHA-256(0x04 || head_{k-1} || root_k)
//
// Every hash input starts with a distinct one-byte tag, so a leaf can never be
// confused with an internal node and an odd level is never padded by
// duplication.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
	lonePrefix byte = 0x02
	padPrefix  byte = 0x03
	headPrefix byte = 0x04
)

// Domain tags.
const (
	HeadTag = "rnse/head/v1"
	PadTag  = "rnse/pad/v1"
)

// Hash is a SHA-256 tree hash.
type Hash [sha256.Size]byte

// String returns the hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText encodes h as hex.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText decodes a hex hash.
func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a hex-encoded hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func sum(prefix byte, parts ...[]byte) Hash {
	hasher := sha256.New()
	hasher.Write([]byte{prefix})
	for _, p := range parts {
		hasher.Write(p)
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// LeafHash hashes one serialized record.
func LeafHash(line []byte) Hash { return sum(leafPrefix, line) }

// PadLeaf is the deterministic filler for position pos of a padded batch.
func PadLeaf(pos uint64) Hash {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], pos)
	return sum(padPrefix, []byte(PadTag), b[:])
}

func nodeHash(left, right Hash) Hash { return sum(nodePrefix, left[:], right[:]) }

func loneHash(child Hash) Hash { return sum(lonePrefix, child[:]) }

// GenesisHead is the head before any root is committed.
func GenesisHead() Hash {
	return Hash(sha256.Sum256([]byte(HeadTag)))
}

// ChainHead folds root into the running head.
func ChainHead(head, root Hash) Hash { return sum(headPrefix, head[:], root[:]) }

// HeadOf recomputes the head over an ordered sequence of roots.
func HeadOf(roots []Hash) Hash {
	h := GenesisHead()
	for _, r := range roots {
		h = ChainHead(h, r)
	}
	return h
}

var errEmptyTree = errors.New("merkle tree needs at least one leaf")

// Root computes the root over leaf hashes.
func Root(leaves []Hash) (Hash, error) {
	if len(leaves) == 0 {
		return Hash{}, errEmptyTree
	}
	level := append([]Hash(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

// RootOfLines hashes each line as a leaf and returns the root.
func RootOfLines(lines [][]byte) (Hash, error) {
	leaves := make([]Hash, len(lines))
	for i, l := range lines {
		leaves[i] = LeafHash(l)
	}
	return Root(leaves)
}

func nextLevel(level []Hash) []Hash {
	next := make([]Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, nodeHash(level[i], level[i+1]))
			continue
		}
		next = append(next, loneHash(level[i]))
	}
	return next
}

// ProofStep is one level of an inclusion proof.
type ProofStep struct {
	// Sibling is the other child at this level. Unused when Lone is set.
	Sibling Hash `json:"sibling"`
	// Left is true when Sibling is the left child.
	Left bool `json:"left,omitempty"`
	// Lone is true when the node had no sibling and was promoted.
	Lone bool `json:"lone,omitempty"`
}

// Proof returns the inclusion proof of leaf i.
func Proof(leaves []Hash, i int) ([]ProofStep, error) {
	if len(leaves) == 0 {
		return nil, errEmptyTree
	}
	if i < 0 || i >= len(leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", i, len(leaves))
	}
	var steps []ProofStep
	level := append([]Hash(nil), leaves...)
	idx := i
	for len(level) > 1 {
		switch {
		case idx%2 == 1:
			steps = append(steps, ProofStep{Sibling: level[idx-1], Left: true})
		case idx+1 < len(level):
			steps = append(steps, ProofStep{Sibling: level[idx+1]})
		default:
			steps = append(steps, ProofStep{Lone: true})
		}
		level = nextLevel(level)
		idx /= 2
	}
	return steps, nil
}

// VerifyProof reports whether leaf is included under root via proof.
func VerifyProof(root, leaf Hash, proof []ProofStep) bool {
	h := leaf
	for _, step := range proof {
		switch {
		case step.Lone:
			h = loneHash(h)
		case step.Left:
			h = nodeHash(step.Sibling, h)
		default:
			h = nodeHash(h, step.Sibling)
		}
	}
	return h == root
}
