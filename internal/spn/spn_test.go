package spn

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnseaudit/internal/prng"
)

func TestSBox_KnownAESValues(t *testing.T) {
	assert.Equal(t, byte(0x63), SBox(0x00))
	assert.Equal(t, byte(0x7c), SBox(0x01))
	assert.Equal(t, byte(0xed), SBox(0x53))
	assert.Equal(t, byte(0x16), SBox(0xff))
}

func TestSBox_IsPermutation(t *testing.T) {
	seen := make(map[byte]bool, 256)
	for i := 0; i < 256; i++ {
		seen[SBox(byte(i))] = true
	}
	assert.Len(t, seen, 256)
}

func TestPermutation_IsBijective(t *testing.T) {
	seen := make(map[uint]bool, 64)
	for i := uint(0); i < 64; i++ {
		seen[PermutedBit(i)] = true
	}
	assert.Len(t, seen, 64)
	assert.Equal(t, uint(63), PermutedBit(63))
	assert.Equal(t, uint(16), PermutedBit(1))
}

func TestDiffuse_Deterministic(t *testing.T) {
	for _, raw := range []uint64{1, 2, 0xdeadbeef, 0x5EEDBEEFCAFE1234, ^uint64(0)} {
		assert.Equal(t, Diffuse(raw), Diffuse(raw))
		assert.Equal(t, Scalar(raw), Scalar(raw))
	}
}

func TestDiffuse_ConformanceVectors(t *testing.T) {
	vectors := []struct {
		raw, want uint64
	}{
		{0x0000000000000001, 0xc1c9a57d8f4e3ef6},
		{0x00000000deadbeef, 0x44378136322a8549},
		{0x5eedbeefcafe1234, 0x403802b660dc3f67},
		{0xffffffffffffffff, 0xc7ec38459648b5c3},
	}
	for _, v := range vectors {
		assert.Equal(t, v.want, Diffuse(v.raw), "Diffuse(%#016x)", v.raw)
	}
}

func TestScalar_InUnitInterval(t *testing.T) {
	s, err := prng.New(0x5EEDBEEFCAFE1234)
	require.NoError(t, err)
	for i := 0; i < 10000; i++ {
		x := Scalar(s.Advance())
		require.GreaterOrEqual(t, x, 0.0)
		require.Less(t, x, 1.0)
	}
	assert.Less(t, Normalize(^uint64(0)), 1.0)
}

func TestDiffuse_Avalanche(t *testing.T) {
	s, err := prng.New(42)
	require.NoError(t, err)

	total := 0
	samples := 0
	for i := 0; i < 256; i++ {
		raw := s.Advance()
		bit := uint(i % 64)
		d := bits.OnesCount64(Diffuse(raw) ^ Diffuse(raw^(1<<bit)))
		total += d
		samples++
	}
	mean := float64(total) / float64(samples)
	assert.InDelta(t, 32.0, mean, 12.0, "mean flipped output bits %.2f", mean)
}
