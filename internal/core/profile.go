package core

// ProfileVersion names the conformance profile implemented by this module.
//
// The profile covers the generator shifts, the SPN round count and tables, the
// resolver encoding, the tracker update rules, the line format and the Merkle
// domain tags. Changing any of them changes every reproducibility digest and
// requires a new version string.
const ProfileVersion = "rnse-audit/1"

// DefaultSeed is the base seed of the reference run.
const DefaultSeed uint64 = 0x5EEDBEEFCAFE1234

// SeedStride separates the seeds of the per-axis streams derived from a base seed.
const SeedStride uint64 = 0x1000

// DeriveSeeds returns n stream seeds base, base+stride, base+2*stride, ...
//
// Addition wraps modulo 2^64. A derived seed may be zero; stream initialization
// rejects it.
func DeriveSeeds(base uint64, n int) []uint64 {
	if n <= 0 {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = base + uint64(i)*SeedStride
	}
	return out
}

// DuplicateSeed reports the first pair of streams i < j that share a seed.
func DuplicateSeed(seeds []uint64) (i, j int, ok bool) {
	first := make(map[uint64]int, len(seeds))
	for j, s := range seeds {
		if i, seen := first[s]; seen {
			return i, j, true
		}
		first[s] = j
	}
	return 0, 0, false
}
