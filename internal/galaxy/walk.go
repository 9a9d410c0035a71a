// Package galaxy derives secondary series from a finalized audit log: one
// accretion walk per stream, stacked into a point cloud, and a rotation-curve
// summary of that cloud.
//
// It is a read-only consumer. Nothing computed here is written back into the
// log or influences generation.
package galaxy

import (
	"errors"
	"fmt"
	"io"
	"math"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/core"
)

// minWalkExtent guards the normalization against an all-zero walk.
const minWalkExtent = 1e-9

// Walk integrates x-½ over ticks and rescales the trajectory so that its
// largest excursion equals scale.
func Walk(xs []float64, scale float64) []float64 {
	out := make([]float64, len(xs))
	var sum, extent float64
	for i, x := range xs {
		sum += x - 0.5
		out[i] = sum
		extent = math.Max(extent, math.Abs(sum))
	}
	if extent < minWalkExtent {
		extent = 1
	}
	k := scale / extent
	for i := range out {
		out[i] *= k
	}
	return out
}

// Cloud is a point cloud with one dimension per stream.
type Cloud struct {
	// Points[i][d] is the coordinate of particle i along stream d.
	Points [][]float64
	// Mass is the smoothed complexity C of stream 0, one value per particle.
	Mass []float64
}

// Dims returns the number of dimensions.
func (c Cloud) Dims() int {
	if len(c.Points) == 0 {
		return 0
	}
	return len(c.Points[0])
}

// Build stacks the per-stream walks of records into a cloud. Records must be
// grouped per stream in merge order, as ParseLog returns them, and every stream
// must have the same number of ticks.
func Build(records []core.TickRecord) (Cloud, error) {
	if len(records) == 0 {
		return Cloud{}, errors.New("no records")
	}
	var streams [][]core.TickRecord
	for _, r := range records {
		if r.Stream == len(streams) {
			streams = append(streams, nil)
		}
		if r.Stream != len(streams)-1 {
			return Cloud{}, fmt.Errorf("record of stream %d out of merge order", r.Stream)
		}
		streams[r.Stream] = append(streams[r.Stream], r)
	}
	n := len(streams[0])
	scale := streams[0][0].Params.Scale
	walks := make([][]float64, len(streams))
	for d, recs := range streams {
		if len(recs) != n {
			return Cloud{}, fmt.Errorf("stream %d has %d ticks, stream 0 has %d", d, len(recs), n)
		}
		xs := make([]float64, n)
		for i, r := range recs {
			xs[i] = r.X
		}
		walks[d] = Walk(xs, scale)
	}

	c := Cloud{Points: make([][]float64, n), Mass: make([]float64, n)}
	for i := 0; i < n; i++ {
		p := make([]float64, len(walks))
		for d := range walks {
			p[d] = walks[d][i]
		}
		c.Points[i] = p
		c.Mass[i] = streams[0][i].C
	}
	return c, nil
}

// FromLog parses a finalized log and builds its cloud.
func FromLog(r io.Reader) (Cloud, error) {
	recs, err := audit.ParseLog(r)
	if err != nil {
		return Cloud{}, err
	}
	return Build(recs)
}
