package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeatureKind(t *testing.T) {
	kind, err := ParseFeatureKind("")
	require.NoError(t, err)
	assert.Equal(t, FeatureLinear, kind)

	kind, err = ParseFeatureKind(" Quadratic ")
	require.NoError(t, err)
	assert.Equal(t, FeatureQuadratic, kind)

	_, err = ParseFeatureKind("cubic")
	assert.True(t, errors.Is(err, ErrInvalidParameter), "unknown selector must not fall back to linear")
}

func TestFeatureExpand(t *testing.T) {
	p := Point{X: 0.5, Y: -2}
	assert.Equal(t, []float64{1, 0.5, -2}, FeatureLinear.Expand(p))
	assert.Equal(t, []float64{1, 0.5, -2, -1, 0.25, 4}, FeatureQuadratic.Expand(p))
	assert.Equal(t, 3, FeatureLinear.Dim())
	assert.Equal(t, 6, FeatureQuadratic.Dim())
	assert.False(t, FeatureKind(0).Valid())
}

func TestHypothesisLineLabels(t *testing.T) {
	line := HypothesisLine{Slope: -1, Intercept: 0.25}
	assert.Equal(t, 1.0, line.Label(Point{X: 0, Y: 0.5}))
	assert.Equal(t, -1.0, line.Label(Point{X: 0, Y: 0}))
	assert.Equal(t, -1.0, line.Label(Point{X: 0, Y: 0.25}), "points on the line are labelled -1")

	seg := line.Segment(-2, 2)
	assert.Equal(t, Point{X: -2, Y: 2.25}, seg.From)
	assert.Equal(t, Point{X: 2, Y: -1.75}, seg.To)
}

func TestSampleValidate(t *testing.T) {
	assert.Error(t, Sample{}.Validate())
	assert.Error(t, Sample{Points: []Point{{}}, Labels: []float64{1, -1}}.Validate())
	assert.NoError(t, Sample{Points: []Point{{}}, Labels: []float64{1}}.Validate())
}
