// Package resource owns Model instances for the duration of one batch.
package resource

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/memview"
	"mlvisuals/internal/model"
)

// Handle owns exactly one Model instance. It is not safe for concurrent use;
// the scheduler only touches it from its loop goroutine.
type Handle struct {
	id       string
	model    classifier.Model
	instance classifier.Instance
	released bool
}

// Acquire creates a fresh instance. Every creation failure is reported as
// classifier.ErrResourceExhausted so callers have one thing to check.
func Acquire(m classifier.Model) (*Handle, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: model is required", classifier.ErrResourceExhausted)
	}
	inst, err := m.Create()
	if err != nil {
		if errors.Is(err, classifier.ErrResourceExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", classifier.ErrResourceExhausted, err)
	}
	return &Handle{id: uuid.NewString(), model: m, instance: inst}, nil
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Instance() classifier.Instance {
	return h.instance
}

func (h *Handle) Released() bool {
	return h.released
}

func (h *Handle) SetFeatures(kind model.FeatureKind) error {
	h.mustLive("SetFeatures")
	return h.model.SetFeatures(h.instance, kind)
}

func (h *Handle) Train(sample model.Sample) error {
	h.mustLive("Train")
	return h.model.Train(h.instance, sample)
}

// Predict returns one label per point. The view is invalid after the next
// call on this handle.
func (h *Handle) Predict(points []model.Point) (memview.Vector, error) {
	h.mustLive("Predict")
	region, err := h.model.Predict(h.instance, points)
	if err != nil {
		return memview.Vector{}, err
	}
	return h.view(region), nil
}

func (h *Handle) Evaluate(points []model.Point) (memview.Vector, error) {
	h.mustLive("Evaluate")
	region, err := h.model.Evaluate(h.instance, points)
	if err != nil {
		return memview.Vector{}, err
	}
	return h.view(region), nil
}

func (h *Handle) Weights() (memview.Vector, error) {
	h.mustLive("Weights")
	region, err := h.model.Weights(h.instance)
	if err != nil {
		return memview.Vector{}, err
	}
	return h.view(region), nil
}

// Release frees the instance. Calling it twice panics.
func (h *Handle) Release() error {
	h.mustLive("Release")
	h.released = true
	return h.model.Release(h.instance)
}

func (h *Handle) view(region classifier.Region) memview.Vector {
	return memview.View(h.model.Buffer, region.Ptr, region.Len)
}

func (h *Handle) mustLive(op string) {
	if h.released {
		panic(fmt.Sprintf("resource: %s on released handle %s", op, h.id))
	}
}
