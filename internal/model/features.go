package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParameter rejects a batch before anything is scheduled.
var ErrInvalidParameter = errors.New("invalid parameter")

type FeatureKind int

const (
	FeatureLinear FeatureKind = iota + 1
	FeatureQuadratic
)

func ParseFeatureKind(name string) (FeatureKind, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", "linear":
		return FeatureLinear, nil
	case "quadratic":
		return FeatureQuadratic, nil
	default:
		return 0, fmt.Errorf("%w: unknown feature kind %q", ErrInvalidParameter, name)
	}
}

func (k FeatureKind) String() string {
	switch k {
	case FeatureLinear:
		return "linear"
	case FeatureQuadratic:
		return "quadratic"
	default:
		return fmt.Sprintf("feature(%d)", int(k))
	}
}

func (k FeatureKind) Valid() bool {
	return k == FeatureLinear || k == FeatureQuadratic
}

// Dim is the weight vector length including the bias term.
func (k FeatureKind) Dim() int {
	switch k {
	case FeatureLinear:
		return 3
	case FeatureQuadratic:
		return 6
	default:
		return 0
	}
}

// Expand maps p to [1, x, y] or [1, x, y, xy, x^2, y^2].
func (k FeatureKind) Expand(p Point) []float64 {
	switch k {
	case FeatureQuadratic:
		return []float64{1, p.X, p.Y, p.X * p.Y, p.X * p.X, p.Y * p.Y}
	default:
		return []float64{1, p.X, p.Y}
	}
}
