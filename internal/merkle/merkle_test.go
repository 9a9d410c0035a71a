package merkle

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnseaudit/internal/core"
)

func makeLines(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf(`{"t":%d}`, i))
	}
	return out
}

func TestRoot_SingleLeafIsLeaf(t *testing.T) {
	leaf := LeafHash([]byte("a"))
	root, err := Root([]Hash{leaf})
	require.NoError(t, err)
	assert.Equal(t, leaf, root)
}

func TestRoot_OddLevelUsesLoneTag(t *testing.T) {
	a, b, c := LeafHash([]byte("a")), LeafHash([]byte("b")), LeafHash([]byte("c"))
	root, err := Root([]Hash{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, nodeHash(nodeHash(a, b), loneHash(c)), root)

	// Duplicating the last leaf must not collide with the odd tree.
	dup, err := Root([]Hash{a, b, c, c})
	require.NoError(t, err)
	assert.NotEqual(t, root, dup)
}

func TestRoot_EmptyIsError(t *testing.T) {
	_, err := Root(nil)
	assert.Error(t, err)
}

func TestProof_AllLeavesVerify(t *testing.T) {
	for n := 1; n <= 17; n++ {
		lines := makeLines(n)
		leaves := make([]Hash, n)
		for i, l := range lines {
			leaves[i] = LeafHash(l)
		}
		root, err := Root(leaves)
		require.NoError(t, err)
		for i := range leaves {
			proof, err := Proof(leaves, i)
			require.NoError(t, err)
			assert.True(t, VerifyProof(root, leaves[i], proof), "n=%d i=%d", n, i)
			assert.False(t, VerifyProof(root, LeafHash([]byte("forged")), proof), "n=%d i=%d", n, i)
		}
	}
}

func TestCommitter_EmitsRootEveryR(t *testing.T) {
	c, err := NewCommitter(4, Strict)
	require.NoError(t, err)

	var emitted []*Batch
	for _, l := range makeLines(12) {
		b, err := c.Add(l)
		require.NoError(t, err)
		if b != nil {
			emitted = append(emitted, b)
		}
	}
	require.Len(t, emitted, 3)
	for i, b := range emitted {
		assert.Equal(t, i, b.Index)
		assert.Equal(t, 4, b.Records)
	}

	batches, head, err := c.Finalize()
	require.NoError(t, err)
	roots := []Hash{batches[0].Root, batches[1].Root, batches[2].Root}
	assert.Equal(t, HeadOf(roots), head)
	assert.Equal(t, head, batches[2].Head)
}

func TestCommitter_StrictRefusesPartialBatch(t *testing.T) {
	com, err := Commit(makeLines(10), 4, Strict)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMerkleBatchIncomplete)
	require.Len(t, com.Batches, 2, "full batches remain committed")
	assert.Equal(t, HeadOf(com.Roots()), com.Head)
}

func TestCommitter_PadFinalIsDeterministic(t *testing.T) {
	a, err := Commit(makeLines(10), 4, PadFinal)
	require.NoError(t, err)
	b, err := Commit(makeLines(10), 4, PadFinal)
	require.NoError(t, err)
	require.Len(t, a.Batches, 3)
	assert.Equal(t, 2, a.Batches[2].Records)
	assert.Equal(t, 2, a.Batches[2].Padding)
	assert.Equal(t, a, b)

	ok, err := VerifyBatch(makeLines(10), a, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommitter_InvalidBatchSize(t *testing.T) {
	_, err := NewCommitter(0, Strict)
	assert.ErrorIs(t, err, core.ErrInvalidParams)
	_, err = NewCommitter(4, "sometimes")
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func TestCommit_BitFlipChangesRootAndHead(t *testing.T) {
	lines := makeLines(16)
	ref, err := Commit(lines, 4, Strict)
	require.NoError(t, err)

	for li := range lines {
		for bit := 0; bit < 8; bit++ {
			tampered := make([][]byte, len(lines))
			for i := range lines {
				tampered[i] = append([]byte(nil), lines[i]...)
			}
			tampered[li][0] ^= 1 << bit

			got, err := Commit(tampered, 4, Strict)
			require.NoError(t, err)
			batch := li / 4
			assert.NotEqual(t, ref.Batches[batch].Root, got.Batches[batch].Root, "line %d bit %d", li, bit)
			assert.NotEqual(t, ref.Head, got.Head, "line %d bit %d", li, bit)

			ok, err := VerifyBatch(tampered, ref, batch)
			require.NoError(t, err)
			assert.False(t, ok)
		}
	}
}

func TestHash_JSONIsHex(t *testing.T) {
	h := LeafHash([]byte("x"))
	b, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"`+h.String()+`"`, string(b))

	var back Hash
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, h, back)
}
