package trial

import (
	"math/rand"

	"mlvisuals/internal/model"
)

// Domain is the half-open interval sample coordinates are drawn from.
const (
	DomainMin = -1.0
	DomainMax = 1.0
)

// RandomSample draws n points uniformly in [-1,1)^2 labelled by target.
func RandomSample(rng *rand.Rand, n int, target model.Target) model.Sample {
	sample := model.Sample{
		Points: make([]model.Point, n),
		Labels: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		p := model.Point{X: uniform(rng, DomainMin, DomainMax), Y: uniform(rng, DomainMin, DomainMax)}
		sample.Points[i] = p
		sample.Labels[i] = target.Label(p)
	}
	return sample
}

// RandomLine returns a target with slope in [-1,1) and intercept in [-0.2,0.2).
func RandomLine(rng *rand.Rand) model.HypothesisLine {
	return model.HypothesisLine{
		Slope:     uniform(rng, -1, 1),
		Intercept: uniform(rng, -0.2, 0.2),
	}
}

func RandomQuadratic(rng *rand.Rand) model.QuadraticTarget {
	var q model.QuadraticTarget
	for i := range q.Weights {
		q.Weights[i] = uniform(rng, -0.1, 0.1)
	}
	return q
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
