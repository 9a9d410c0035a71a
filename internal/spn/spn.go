// Package spn implements the fixed-round substitution-permutation diffusion
// transform applied to every raw generator word.
//
// Profile spn/v1:
//   - 64-bit block, Rounds rounds
//   - each round: XOR round key, AES S-box on every byte, PRESENT bit permutation
//   - final whitening XOR with one more round key
//   - round key r = RoundKeyBase * (r+1) mod 2^64
//
// The transform is stateless. The tables are computed once at package init and
// never change; any change to them is a conformance break.
package spn

import "math/bits"

// Conformance constants of profile spn/v1.
const (
	Version      = "spn/v1"
	Rounds       = 4
	RoundKeyBase = 0x9E3779B97F4A7C15
)

var (
	sbox    [256]byte
	permMap [64]uint
	keys    [Rounds + 1]uint64
)

func init() {
	sbox = buildSBox()
	for i := uint(0); i < 63; i++ {
		permMap[i] = (16 * i) % 63
	}
	permMap[63] = 63
	for r := range keys {
		keys[r] = uint64(RoundKeyBase) * uint64(r+1)
	}
}

// buildSBox computes the AES S-box: the multiplicative inverse in GF(2^8)
// (modulo x^8+x^4+x^3+x+1) followed by the AES affine map.
//
// p walks the multiplicative group by powers of 3 while q walks it by powers
// of 3^-1, so q is always the inverse of p.
func buildSBox() [256]byte {
	var s [256]byte
	p, q := byte(1), byte(1)
	for {
		if p&0x80 != 0 {
			p = p ^ (p << 1) ^ 0x1B
		} else {
			p = p ^ (p << 1)
		}

		q ^= q << 1
		q ^= q << 2
		q ^= q << 4
		if q&0x80 != 0 {
			q ^= 0x09
		}

		x := q ^ bits.RotateLeft8(q, 1) ^ bits.RotateLeft8(q, 2) ^ bits.RotateLeft8(q, 3) ^ bits.RotateLeft8(q, 4)
		s[p] = x ^ 0x63

		if p == 1 {
			break
		}
	}
	s[0] = 0x63
	return s
}

// SBox returns the substitution table value for b.
func SBox(b byte) byte { return sbox[b] }

// PermutedBit returns the destination position of input bit i (0 = LSB).
func PermutedBit(i uint) uint { return permMap[i&63] }

func substitute(v uint64) uint64 {
	var out uint64
	for shift := uint(0); shift < 64; shift += 8 {
		out |= uint64(sbox[byte(v>>shift)]) << shift
	}
	return out
}

func permute(v uint64) uint64 {
	var out uint64
	for i := uint(0); i < 64; i++ {
		out |= ((v >> i) & 1) << permMap[i]
	}
	return out
}

// Diffuse applies the full transform to a raw generator word.
func Diffuse(raw uint64) uint64 {
	v := raw
	for r := 0; r < Rounds; r++ {
		v ^= keys[r]
		v = substitute(v)
		v = permute(v)
	}
	return v ^ keys[Rounds]
}

// Normalize maps a 64-bit word to [0,1) using its top 53 bits.
func Normalize(w uint64) float64 {
	return float64(w>>11) / (1 << 53)
}

// Scalar returns the diffused scalar x in [0,1) for a raw generator word.
func Scalar(raw uint64) float64 {
	return Normalize(Diffuse(raw))
}
