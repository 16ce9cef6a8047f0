package model

import (
	"errors"
	"fmt"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type LabeledPoint struct {
	Point
	Label float64 `json:"label"`
}

// Sample is a training draw: one label in {-1, +1} per point.
type Sample struct {
	Points []Point
	Labels []float64
}

var errMalformedSample = errors.New("malformed sample")

func (s Sample) Len() int {
	return len(s.Points)
}

func (s Sample) Validate() error {
	if len(s.Points) == 0 {
		return fmt.Errorf("%w: sample is empty", errMalformedSample)
	}
	if len(s.Points) != len(s.Labels) {
		return fmt.Errorf("%w: %d points but %d labels", errMalformedSample, len(s.Points), len(s.Labels))
	}
	return nil
}

// Target labels points for a trial.
type Target interface {
	Label(p Point) float64
	Value(p Point) float64
}

// HypothesisLine is y = Slope*x + Intercept.
type HypothesisLine struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

func (l HypothesisLine) At(x float64) float64 {
	return l.Slope*x + l.Intercept
}

// Value is the signed vertical distance of p above the line.
func (l HypothesisLine) Value(p Point) float64 {
	return p.Y - l.At(p.X)
}

func (l HypothesisLine) Label(p Point) float64 {
	if l.Value(p) > 0 {
		return 1
	}
	return -1
}

func (l HypothesisLine) Segment(x0, x1 float64) Segment {
	return Segment{
		From: Point{X: x0, Y: l.At(x0)},
		To:   Point{X: x1, Y: l.At(x1)},
	}
}

// QuadraticTarget labels by sign(w . [1, x, y, xy, x^2, y^2]).
type QuadraticTarget struct {
	Weights [6]float64 `json:"weights"`
}

func (q QuadraticTarget) Value(p Point) float64 {
	phi := FeatureQuadratic.Expand(p)
	sum := 0.0
	for i, w := range q.Weights {
		sum += w * phi[i]
	}
	return sum
}

func (q QuadraticTarget) Label(p Point) float64 {
	if q.Value(p) > 0 {
		return 1
	}
	return -1
}

type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// Contour holds decision values sampled on a square grid, row-major by y then x.
type Contour struct {
	Min    float64   `json:"min"`
	Step   float64   `json:"step"`
	Size   int       `json:"size"`
	Values []float64 `json:"values"`
}

type GeometryKind string

const (
	GeometrySegment GeometryKind = "segment"
	GeometryContour GeometryKind = "contour"
	GeometryPoint   GeometryKind = "point"
)

// Geometry is one fixed-batch record handed to a presenter.
type Geometry struct {
	Kind      GeometryKind  `json:"kind"`
	Trial     int           `json:"trial"`
	Reference bool          `json:"reference,omitempty"`
	Segment   *Segment      `json:"segment,omitempty"`
	Contour   *Contour      `json:"contour,omitempty"`
	Point     *LabeledPoint `json:"point,omitempty"`
}

// CurvePoint is one sweep step: the swept parameter and the statistics of its trials.
type CurvePoint struct {
	Param  int     `json:"param"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Runs   int     `json:"runs"`
	Failed int     `json:"failed,omitempty"`
}

type LearningCurve struct {
	VersionedRecord
	ID           string       `json:"id"`
	Feature      string       `json:"feature"`
	From         int          `json:"from"`
	To           int          `json:"to"`
	Step         int          `json:"step"`
	Runs         int          `json:"runs"`
	Points       []CurvePoint `json:"points"`
	Skipped      []int        `json:"skipped,omitempty"`
	Complete     bool         `json:"complete"`
	CreatedAtUTC string       `json:"created_at_utc"`
}

type BoundaryBatch struct {
	VersionedRecord
	ID           string         `json:"id"`
	Kind         RunKind        `json:"kind"`
	Mode         string         `json:"mode"`
	Feature      string         `json:"feature"`
	N            int            `json:"n"`
	Runs         int            `json:"runs"`
	Target       HypothesisLine `json:"target"`
	Reference    *Segment       `json:"reference,omitempty"`
	Segments     []Segment      `json:"segments"`
	Contours     int            `json:"contours,omitempty"`
	Degenerate   int            `json:"degenerate"`
	Failed       int            `json:"failed"`
	Complete     bool           `json:"complete"`
	CreatedAtUTC string         `json:"created_at_utc"`
}

type RunKind string

const (
	RunKindLearningCurve RunKind = "learning-curve"
	RunKindBiasVariance  RunKind = "bias-variance"
	RunKindNonlinear     RunKind = "nonlinear"
)

type RunRecord struct {
	ID           string  `json:"id"`
	Kind         RunKind `json:"kind"`
	Complete     bool    `json:"complete"`
	CreatedAtUTC string  `json:"created_at_utc"`
}
