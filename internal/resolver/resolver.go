// Package resolver maps a tick's diffused state to a symbolic label.
//
// The resolver never branches on the numeric state directly. It hashes a
// canonical encoding of (t, x, h, params) and selects the label and the mixing
// weights from the digest bytes, so the emitted identity is a pure function of
// the tick and independent of call order or goroutine.
package resolver

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"rnseaudit/internal/core"
)

// DomainTag prefixes every resolver digest.
const DomainTag = "rnse/resolve/v1"

// Digest is the SHA-256 digest the resolution is derived from.
type Digest [sha256.Size]byte

// Resolution is the resolver's output for one tick.
type Resolution struct {
	Label   core.Label
	Weights [3]float64
	Digest  Digest
}

// Input holds every component that contributes to a resolution.
type Input struct {
	Tick   uint64
	X      float64
	H      float64
	Params core.Params
}

// Encode returns the canonical byte encoding of in.
//
// Every component is length-prefixed (8-byte big-endian length) to prevent
// ambiguity between adjacent fields:
//  1. domain tag
//  2. tick index (uint64 big-endian)
//  3. x, h as IEEE-754 bit patterns (uint64 big-endian)
//  4. params: tau, q, alpha, window, scale in that order
func Encode(in Input) []byte {
	buf := make([]byte, 0, 8*20+len(DomainTag))

	writeField := func(data []byte) {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(data)))
		buf = append(buf, data...)
	}
	u64 := func(v uint64) []byte {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		return b[:]
	}
	f64 := func(v float64) []byte {
		// -0 and +0 resolve identically.
		if v == 0 {
			v = 0
		}
		return u64(math.Float64bits(v))
	}

	writeField([]byte(DomainTag))
	writeField(u64(in.Tick))
	writeField(f64(in.X))
	writeField(f64(in.H))
	writeField(f64(in.Params.Tau))
	writeField(u64(uint64(in.Params.Q)))
	writeField(f64(in.Params.Alpha))
	writeField(u64(uint64(in.Params.Window)))
	writeField(f64(in.Params.Scale))
	return buf
}

// Resolve computes the resolution of in.
func Resolve(in Input) Resolution {
	d := Digest(sha256.Sum256(Encode(in)))
	return Resolution{
		Label:   LabelFor(d),
		Weights: WeightsFor(d),
		Digest:  d,
	}
}

// LabelFor selects the label with index uint64be(d[0:8]) mod |labels|.
func LabelFor(d Digest) core.Label {
	labels := core.Labels()
	idx := binary.BigEndian.Uint64(d[0:8]) % uint64(len(labels))
	return labels[idx]
}

// WeightsFor derives the 3-element mixing vector from d[8:14].
//
// Each weight is (uint16be + 1) / sum, so all weights are strictly positive.
// The last weight is computed as 1 - (w0 + w1) so that (w0 + w1) + w2 is
// exactly 1 in float64 arithmetic.
func WeightsFor(d Digest) [3]float64 {
	var raw [3]float64
	var sum float64
	for i := range raw {
		raw[i] = float64(binary.BigEndian.Uint16(d[8+2*i:10+2*i])) + 1
		sum += raw[i]
	}
	w0 := raw[0] / sum
	w1 := raw[1] / sum
	return [3]float64{w0, w1, 1 - (w0 + w1)}
}
