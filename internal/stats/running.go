package stats

import (
	"errors"
	"math"
)

var ErrEmptySample = errors.New("statistics requested on an empty sample")

// Running accumulates count, sum and sum of squares so a step's mean and
// population standard deviation are available without keeping the values.
type Running struct {
	count int
	sum   float64
	sumSq float64
}

func (r *Running) Push(value float64) {
	r.count++
	r.sum += value
	r.sumSq += value * value
}

func (r *Running) Count() int {
	return r.count
}

func (r *Running) Mean() (float64, error) {
	if r.count == 0 {
		return 0, ErrEmptySample
	}
	return r.sum / float64(r.count), nil
}

// Std divides by N. Cancellation can push the variance slightly below zero;
// it is clamped.
func (r *Running) Std() (float64, error) {
	mean, err := r.Mean()
	if err != nil {
		return 0, err
	}
	variance := r.sumSq/float64(r.count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance), nil
}

func (r *Running) Reset() {
	*r = Running{}
}

// Mean is the two-pass arithmetic mean.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptySample
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values)), nil
}

// Std returns population standard deviation.
func Std(values []float64) (float64, error) {
	mean, err := Mean(values)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, value := range values {
		diff := mean - value
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values))), nil
}
