// Package trial runs one randomized experiment against a Model instance: draw
// a sample, train, then score or extract geometry from the fitted model.
//
// Every value read through a memview.Vector is copied out before the next call
// on the handle.
package trial

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"mlvisuals/internal/memview"
	"mlvisuals/internal/model"
	"mlvisuals/internal/resource"
)

var ErrDegenerateBoundary = errors.New("degenerate decision boundary")

// Default endpoints for boundary segments.
const (
	BoundaryX0 = -2.0
	BoundaryX1 = 2.0
)

// ErrorTrial measures the in-sample classification error.
type ErrorTrial struct {
	N      int
	Target model.Target
}

func (t ErrorTrial) Run(h *resource.Handle, rng *rand.Rand) (float64, error) {
	return t.Score(h, RandomSample(rng, t.N, t.Target))
}

// Score trains on sample and predicts the same points: one train call and one
// predict call.
func (t ErrorTrial) Score(h *resource.Handle, sample model.Sample) (float64, error) {
	if err := h.Train(sample); err != nil {
		return 0, err
	}
	predicted, err := h.Predict(sample.Points)
	if err != nil {
		return 0, err
	}
	return MismatchRatio(predicted, sample.Labels), nil
}

// MismatchRatio is the fraction of labels that differ from predicted.
func MismatchRatio(predicted memview.Vector, labels []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	n := min(predicted.Len(), len(labels))
	mismatches := len(labels) - n
	for i := 0; i < n; i++ {
		if predicted.At(i) != labels[i] {
			mismatches++
		}
	}
	return float64(mismatches) / float64(len(labels))
}

// BoundaryTrial fits a linear model and turns its weights into a line segment.
type BoundaryTrial struct {
	N      int
	Target model.Target
	X0, X1 float64
}

func (t BoundaryTrial) Run(h *resource.Handle, rng *rand.Rand) (model.Segment, error) {
	return t.Fit(h, RandomSample(rng, t.N, t.Target))
}

// Fit makes one train call and no predict call.
func (t BoundaryTrial) Fit(h *resource.Handle, sample model.Sample) (model.Segment, error) {
	if err := h.Train(sample); err != nil {
		return model.Segment{}, err
	}
	view, err := h.Weights()
	if err != nil {
		return model.Segment{}, err
	}
	x0, x1 := t.X0, t.X1
	if x0 == 0 && x1 == 0 {
		x0, x1 = BoundaryX0, BoundaryX1
	}
	return BoundaryFromWeights(view.Floats(), x0, x1)
}

// BoundaryFromWeights solves w0 + w1*x + w2*y = 0 for y at x0 and x1.
func BoundaryFromWeights(w []float64, x0, x1 float64) (model.Segment, error) {
	if len(w) != 3 {
		return model.Segment{}, fmt.Errorf("boundary needs 3 weights, got %d", len(w))
	}
	if w[2] == 0 {
		return model.Segment{}, fmt.Errorf("%w: w2 is zero", ErrDegenerateBoundary)
	}
	y0 := (-w[0] - w[1]*x0) / w[2]
	y1 := (-w[0] - w[1]*x1) / w[2]
	if !finite(y0) || !finite(y1) {
		return model.Segment{}, fmt.Errorf("%w: weights %v", ErrDegenerateBoundary, w)
	}
	return model.Segment{
		From: model.Point{X: x0, Y: y0},
		To:   model.Point{X: x1, Y: y1},
	}, nil
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
