package trial

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/classifier/classifiertest"
	"mlvisuals/internal/memview"
	"mlvisuals/internal/model"
	"mlvisuals/internal/resource"
)

func labelView(labels []float64) memview.Vector {
	buf := make([]byte, 8+8*len(labels))
	for i, v := range labels {
		binary.LittleEndian.PutUint64(buf[8+8*i:], math.Float64bits(v))
	}
	return memview.View(func() []byte { return buf }, 8, len(labels))
}

func TestMismatchRatioBounds(t *testing.T) {
	labels := []float64{1, -1, -1, 1, 1}
	assert.Equal(t, 0.0, MismatchRatio(labelView(labels), labels))

	flipped := make([]float64, len(labels))
	for i, v := range labels {
		flipped[i] = -v
	}
	assert.Equal(t, 1.0, MismatchRatio(labelView(flipped), labels))
	assert.Equal(t, 0.4, MismatchRatio(labelView([]float64{1, 1, -1, -1, 1}), labels))
}

func TestBoundaryFromWeights(t *testing.T) {
	seg, err := BoundaryFromWeights([]float64{-0.05, 0.2, 0.2}, BoundaryX0, BoundaryX1)
	require.NoError(t, err)
	assert.Equal(t, -2.0, seg.From.X)
	assert.InDelta(t, 2.25, seg.From.Y, 1e-12)
	assert.Equal(t, 2.0, seg.To.X)
	assert.InDelta(t, -1.75, seg.To.Y, 1e-12)
}

func TestBoundaryFromWeightsDegenerate(t *testing.T) {
	_, err := BoundaryFromWeights([]float64{0, 1, 0}, BoundaryX0, BoundaryX1)
	assert.True(t, errors.Is(err, ErrDegenerateBoundary))

	_, err = BoundaryFromWeights([]float64{math.NaN(), 1, 1}, BoundaryX0, BoundaryX1)
	assert.True(t, errors.Is(err, ErrDegenerateBoundary))

	_, err = BoundaryFromWeights([]float64{1, 1}, BoundaryX0, BoundaryX1)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDegenerateBoundary))
}

func TestErrorTrialCallSequence(t *testing.T) {
	rec := classifiertest.New()
	h, err := resource.Acquire(rec)
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Release()) }()

	ratio, err := ErrorTrial{N: 100, Target: model.HypothesisLine{Slope: -1, Intercept: 0.25}}.Run(h, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ratio, 0.0)
	assert.LessOrEqual(t, ratio, 1.0)
	assert.Equal(t, 1, rec.Count("train"))
	assert.Equal(t, 1, rec.Count("predict"))
}

func TestErrorTrialSurfacesTrainingError(t *testing.T) {
	rec := classifiertest.New()
	h, err := resource.Acquire(rec)
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Release()) }()

	_, err = ErrorTrial{N: 0, Target: model.HypothesisLine{}}.Run(h, rand.New(rand.NewSource(1)))
	assert.True(t, errors.Is(err, classifier.ErrTrainingError))
	assert.Equal(t, 0, rec.Count("predict"))
}

func TestBoundaryTrialReadsWeightsOnly(t *testing.T) {
	rec := classifiertest.New()
	h, err := resource.Acquire(rec)
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Release()) }()

	target := model.HypothesisLine{Slope: -1, Intercept: 0.25}
	seg, err := BoundaryTrial{N: 500, Target: target}.Run(h, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	assert.Equal(t, BoundaryX0, seg.From.X)
	assert.Equal(t, BoundaryX1, seg.To.X)
	assert.InDelta(t, target.At(0), (seg.From.Y+seg.To.Y)/2, 0.3)

	assert.Equal(t, 1, rec.Count("train"))
	assert.Equal(t, 1, rec.Count("weights"))
	assert.Equal(t, 0, rec.Count("predict"))
}

func TestContourGrid(t *testing.T) {
	grid := ContourGrid()
	require.Len(t, grid, 961)
	assert.Equal(t, model.Point{X: -1.5, Y: -1.5}, grid[0])
	assert.InDelta(t, 1.5, grid[960].X, 1e-12)
	assert.InDelta(t, 1.5, grid[960].Y, 1e-12)
	assert.InDelta(t, -1.4, grid[1].X, 1e-12)
	assert.InDelta(t, -1.4, grid[ContourSize].Y, 1e-12)
}

func TestContourTrialQuadratic(t *testing.T) {
	rec := classifiertest.New()
	h, err := resource.Acquire(rec)
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Release()) }()
	require.NoError(t, h.SetFeatures(model.FeatureQuadratic))

	target := model.QuadraticTarget{Weights: [6]float64{-0.3, 0, 0, 0, 1, 1}}
	contour, err := ContourTrial{N: 400, Target: target}.Run(h, rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	require.Len(t, contour.Values, 961)
	assert.Equal(t, ContourSize, contour.Size)

	center := contour.Values[15*ContourSize+15]
	corner := contour.Values[0]
	assert.Less(t, center, 0.0)
	assert.Greater(t, corner, 0.0)
	assert.Equal(t, 1, rec.Count("evaluate"))

	ref := TargetContour(target)
	assert.InDelta(t, -0.3, ref.Values[15*ContourSize+15], 1e-12)
}

func TestRandomTargetsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 200; i++ {
		line := RandomLine(rng)
		assert.True(t, line.Slope >= -1 && line.Slope < 1)
		assert.True(t, line.Intercept >= -0.2 && line.Intercept < 0.2)
		for _, w := range RandomQuadratic(rng).Weights {
			assert.True(t, w >= -0.1 && w < 0.1)
		}
	}
	sample := RandomSample(rng, 50, model.HypothesisLine{})
	require.NoError(t, sample.Validate())
	for _, p := range sample.Points {
		assert.True(t, p.X >= -1 && p.X < 1 && p.Y >= -1 && p.Y < 1)
	}
}
