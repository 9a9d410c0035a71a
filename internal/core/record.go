package core

// Label is the symbolic resolution of a tick.
//
// The label set is closed. The string values are part of the canonical log
// bytes; do not rename.
type Label string

const (
	LabelAccretion  Label = "accretion"
	LabelDispersive Label = "dispersive"
	LabelNull       Label = "null"
)

// labelOrder is the digest-index order of the label set. Index i is selected
// when digest mod len(labelOrder) == i.
var labelOrder = [...]Label{LabelAccretion, LabelDispersive, LabelNull}

// Labels returns the closed label set in digest-index order.
func Labels() []Label {
	out := make([]Label, len(labelOrder))
	copy(out, labelOrder[:])
	return out
}

// Valid reports whether l is a member of the closed label set.
func (l Label) Valid() bool {
	for _, known := range labelOrder {
		if l == known {
			return true
		}
	}
	return false
}

// TickRecord is the unit of output, immutable once created.
//
// Field order here mirrors the canonical serialization:
//
//	t, seed64, params, C, accepted, x, h, D, w, interp, noise
//
// Stream is the merge key only. It is never serialized; a reader recovers it
// from the order of distinct seeds in the merged log.
type TickRecord struct {
	Stream int

	T        uint64
	Seed     uint64
	Params   Params
	C        float64
	Accepted bool
	X        float64
	H        float64
	D        float64
	W        [3]float64
	Interp   Label
	Noise    float64
}

// Key returns the deterministic merge key of the record.
func (r TickRecord) Key() MergeKey {
	return MergeKey{Stream: r.Stream, Tick: r.T}
}

// MergeKey orders records in the merged audit log: stream index first, then
// tick index. Wall-clock completion order never participates.
type MergeKey struct {
	Stream int
	Tick   uint64
}

// Less reports whether k sorts before other.
func (k MergeKey) Less(other MergeKey) bool {
	if k.Stream != other.Stream {
		return k.Stream < other.Stream
	}
	return k.Tick < other.Tick
}
