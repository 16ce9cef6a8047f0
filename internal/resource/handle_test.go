package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/classifier/classifiertest"
	"mlvisuals/internal/model"
)

func TestAcquireWrapsCreateFailure(t *testing.T) {
	rec := classifiertest.New()
	rec.CreateErr = errors.New("allocator refused")

	h, err := Acquire(rec)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, classifier.ErrResourceExhausted))
}

func TestHandlesOwnDistinctInstances(t *testing.T) {
	rec := classifiertest.New()
	a, err := Acquire(rec)
	require.NoError(t, err)
	b, err := Acquire(rec)
	require.NoError(t, err)

	assert.NotEqual(t, a.Instance(), b.Instance())
	assert.NotEqual(t, a.ID(), b.ID())
	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
}

func TestHandleWeightsView(t *testing.T) {
	rec := classifiertest.New()
	h, err := Acquire(rec)
	require.NoError(t, err)
	defer func() { require.NoError(t, h.Release()) }()

	sample := model.Sample{
		Points: []model.Point{{X: -0.5, Y: 0.5}, {X: 0.5, Y: 0.6}, {X: -0.4, Y: -0.7}, {X: 0.3, Y: -0.5}},
		Labels: []float64{1, 1, -1, -1},
	}
	require.NoError(t, h.Train(sample))

	weights, err := h.Weights()
	require.NoError(t, err)
	assert.Equal(t, 3, weights.Len())

	labels, err := h.Predict(sample.Points)
	require.NoError(t, err)
	assert.Equal(t, sample.Labels, labels.Floats())
}

func TestReleaseTwicePanics(t *testing.T) {
	rec := classifiertest.New()
	h, err := Acquire(rec)
	require.NoError(t, err)

	require.NoError(t, h.Release())
	assert.True(t, h.Released())
	assert.Panics(t, func() { _ = h.Release() })
	assert.Panics(t, func() { _ = h.Train(model.Sample{}) })
	assert.Panics(t, func() { _, _ = h.Weights() })

	assert.Equal(t, 1, rec.Count("release"))
	assert.Empty(t, rec.CallsAfterRelease())
}
