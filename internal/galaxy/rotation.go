package galaxy

import (
	"errors"
	"math"
	"sort"
)

// VelocityGain multiplies speeds for readability.
const VelocityGain = 10.0

// Profile classifies the velocity drop between the inner and the outer half.
type Profile string

const (
	ProfileFlat  Profile = "flat"
	ProfileMild  Profile = "mild-decline"
	ProfileSteep Profile = "steep-decline"
)

// Profile thresholds, in percent.
const (
	flatDropLimit = 5.0
	mildDropLimit = 20.0
)

// ClassifyDrop maps a velocity drop percentage to a Profile.
func ClassifyDrop(drop float64) Profile {
	switch {
	case drop < flatDropLimit:
		return ProfileFlat
	case drop < mildDropLimit:
		return ProfileMild
	default:
		return ProfileSteep
	}
}

// RotationCurve summarizes speed against radius.
type RotationCurve struct {
	InnerRadius         float64 `json:"inner_radius"`
	OuterRadius         float64 `json:"outer_radius"`
	MedianRadius        float64 `json:"median_radius"`
	InnerVelocity       float64 `json:"inner_velocity"`
	OuterVelocity       float64 `json:"outer_velocity"`
	VelocityDropPercent float64 `json:"velocity_drop_percent"`
	InnerVelocityStd    float64 `json:"inner_v_stddev"`
	OuterVelocityStd    float64 `json:"outer_v_stddev"`
	Particles           int     `json:"total_particles"`
	MeanComplexity      float64 `json:"mean_complexity"`
	Profile             Profile `json:"profile"`
}

var errTooFewParticles = errors.New("rotation curve needs particles on both sides of the median radius")

// Analyze computes the rotation curve of c.
//
// Radius is the distance from the origin. Velocity is the finite-difference
// gradient of position along the particle index (central differences inside,
// one-sided at the ends), scaled by VelocityGain. Particles strictly inside
// and strictly outside the median radius form the two halves.
func Analyze(c Cloud) (RotationCurve, error) {
	n := len(c.Points)
	if n < 2 {
		return RotationCurve{}, errTooFewParticles
	}
	r := make([]float64, n)
	v := make([]float64, n)
	for i, p := range c.Points {
		r[i] = norm(p)
		v[i] = VelocityGain * norm(gradientAt(c.Points, i))
	}
	med := median(r)

	var inner, outer []float64
	rc := RotationCurve{MedianRadius: med, Particles: n, InnerRadius: math.Inf(1), OuterRadius: math.Inf(-1)}
	for i := range r {
		switch {
		case r[i] < med:
			inner = append(inner, v[i])
			rc.InnerRadius = math.Min(rc.InnerRadius, r[i])
		case r[i] > med:
			outer = append(outer, v[i])
			rc.OuterRadius = math.Max(rc.OuterRadius, r[i])
		}
	}
	if len(inner) == 0 || len(outer) == 0 {
		return RotationCurve{}, errTooFewParticles
	}
	rc.InnerVelocity, rc.InnerVelocityStd = meanStd(inner)
	rc.OuterVelocity, rc.OuterVelocityStd = meanStd(outer)
	if rc.InnerVelocity > 0 {
		rc.VelocityDropPercent = 100 * (1 - rc.OuterVelocity/rc.InnerVelocity)
	}
	rc.MeanComplexity, _ = meanStd(c.Mass)
	rc.Profile = ClassifyDrop(rc.VelocityDropPercent)
	return rc, nil
}

func gradientAt(pts [][]float64, i int) []float64 {
	n := len(pts)
	g := make([]float64, len(pts[i]))
	for d := range g {
		switch {
		case i == 0:
			g[d] = pts[1][d] - pts[0][d]
		case i == n-1:
			g[d] = pts[n-1][d] - pts[n-2][d]
		default:
			g[d] = (pts[i+1][d] - pts[i-1][d]) / 2
		}
	}
	return g
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// meanStd returns the mean and the population standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}
