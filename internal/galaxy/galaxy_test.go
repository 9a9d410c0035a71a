package galaxy

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnseaudit/internal/core"
	"rnseaudit/internal/orchestrator"
)

func TestWalk_ScalesLargestExcursion(t *testing.T) {
	w := Walk([]float64{1, 1, 0, 0.5}, 100)
	// raw walk: 0.5, 1.0, 0.5, 0.5
	assert.InDeltaSlice(t, []float64{50, 100, 50, 50}, w, 1e-12)

	flat := Walk([]float64{0.5, 0.5}, 100)
	assert.Equal(t, []float64{0, 0}, flat)
}

func TestClassifyDrop(t *testing.T) {
	assert.Equal(t, ProfileFlat, ClassifyDrop(-3))
	assert.Equal(t, ProfileFlat, ClassifyDrop(4.99))
	assert.Equal(t, ProfileMild, ClassifyDrop(5))
	assert.Equal(t, ProfileSteep, ClassifyDrop(20))
}

func TestAnalyze_Line(t *testing.T) {
	// Particles on a line at increasing radius with constant speed.
	c := Cloud{Mass: []float64{0.2, 0.4, 0.6, 0.8}}
	for i := 1; i <= 4; i++ {
		c.Points = append(c.Points, []float64{float64(i), 0})
	}
	rc, err := Analyze(c)
	require.NoError(t, err)
	assert.Equal(t, 2.5, rc.MedianRadius)
	assert.Equal(t, 1.0, rc.InnerRadius)
	assert.Equal(t, 4.0, rc.OuterRadius)
	assert.InDelta(t, 10.0, rc.InnerVelocity, 1e-12)
	assert.InDelta(t, 10.0, rc.OuterVelocity, 1e-12)
	assert.InDelta(t, 0.0, rc.VelocityDropPercent, 1e-12)
	assert.InDelta(t, 0.5, rc.MeanComplexity, 1e-12)
	assert.Equal(t, ProfileFlat, rc.Profile)

	_, err = Analyze(Cloud{Points: [][]float64{{1}}})
	assert.Error(t, err)
}

func TestFromLog_ThreeAxes(t *testing.T) {
	req := orchestrator.Request{
		Seeds:  core.DeriveSeeds(core.DefaultSeed, 3),
		Ticks:  400,
		Params: core.DefaultParams(),
	}
	res, err := orchestrator.New().Run(context.Background(), req)
	require.NoError(t, err)

	c, err := FromLog(bytes.NewReader(res.Log))
	require.NoError(t, err)
	require.Len(t, c.Points, 400)
	assert.Equal(t, 3, c.Dims())

	maxAbs := 0.0
	for _, p := range c.Points {
		for _, v := range p {
			if v > maxAbs {
				maxAbs = v
			} else if -v > maxAbs {
				maxAbs = -v
			}
		}
	}
	assert.InDelta(t, req.Params.Scale, maxAbs, 1e-9)

	rc, err := Analyze(c)
	require.NoError(t, err)
	assert.Equal(t, 400, rc.Particles)
	assert.GreaterOrEqual(t, rc.MeanComplexity, 0.0)
	assert.LessOrEqual(t, rc.MeanComplexity, 1.0)

	again, err := FromLog(bytes.NewReader(res.Log))
	require.NoError(t, err)
	assert.Equal(t, c, again)
}
