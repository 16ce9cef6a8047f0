package trial

import (
	"math/rand"

	"mlvisuals/internal/model"
	"mlvisuals/internal/resource"
)

const (
	ContourMin  = -1.5
	ContourStep = 0.1
	ContourSize = 31
)

// ContourGrid lists the 31x31 grid over [-1.5,1.5]^2, row-major by y then x.
func ContourGrid() []model.Point {
	points := make([]model.Point, 0, ContourSize*ContourSize)
	for j := 0; j < ContourSize; j++ {
		y := float64(j)*ContourStep + ContourMin
		for i := 0; i < ContourSize; i++ {
			points = append(points, model.Point{X: float64(i)*ContourStep + ContourMin, Y: y})
		}
	}
	return points
}

// TargetContour samples target on the contour grid.
func TargetContour(target model.Target) model.Contour {
	grid := ContourGrid()
	values := make([]float64, len(grid))
	for i, p := range grid {
		values[i] = target.Value(p)
	}
	return model.Contour{Min: ContourMin, Step: ContourStep, Size: ContourSize, Values: values}
}

// ContourTrial fits a model under the handle's current feature kind and
// samples its decision function on the contour grid.
type ContourTrial struct {
	N      int
	Target model.Target
}

func (t ContourTrial) Run(h *resource.Handle, rng *rand.Rand) (model.Contour, error) {
	return t.Fit(h, RandomSample(rng, t.N, t.Target))
}

func (t ContourTrial) Fit(h *resource.Handle, sample model.Sample) (model.Contour, error) {
	if err := h.Train(sample); err != nil {
		return model.Contour{}, err
	}
	view, err := h.Evaluate(ContourGrid())
	if err != nil {
		return model.Contour{}, err
	}
	return model.Contour{
		Min:    ContourMin,
		Step:   ContourStep,
		Size:   ContourSize,
		Values: view.Floats(),
	}, nil
}
