// Package classifier defines the numeric Model the simulator drives and a
// reference least-squares implementation that returns results through linear
// memory.
package classifier

import (
	"errors"

	"mlvisuals/internal/model"
)

var (
	ErrTrainingError     = errors.New("training failed")
	ErrResourceExhausted = errors.New("model resources exhausted")
	ErrNotTrained        = errors.New("model instance has not been trained")
	ErrUnknownInstance   = errors.New("unknown model instance")
)

type Instance uint32

// Region locates Len float64 values at byte offset Ptr of Buffer().
type Region struct {
	Ptr uint32
	Len int
}

// Model is single-threaded and non-reentrant. Any call except Buffer may
// reallocate the buffer and overwrite regions returned earlier.
type Model interface {
	Create() (Instance, error)
	Release(inst Instance) error
	SetFeatures(inst Instance, kind model.FeatureKind) error
	Train(inst Instance, sample model.Sample) error
	// Predict writes one label in {-1, +1} per point.
	Predict(inst Instance, points []model.Point) (Region, error)
	// Evaluate writes the raw decision value w . phi(p) per point.
	Evaluate(inst Instance, points []model.Point) (Region, error)
	// Weights has length kind.Dim(): 3 for the linear features.
	Weights(inst Instance) (Region, error)
	Buffer() []byte
}
