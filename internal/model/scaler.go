package model

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/inodb/vibe-cnv/internal/stats"
)

// ScalerKind names a feature scaling method.
type ScalerKind string

const (
	RobustScaler   ScalerKind = "robustscaler"
	StandardScaler ScalerKind = "standardscaler"
	MinMaxScaler   ScalerKind = "minmaxscaler"
)

// ParseScaler resolves a scaler name or one of its short aliases.
func ParseScaler(name string) (ScalerKind, error) {
	switch strings.ToLower(name) {
	case "robustscaler", "rs", "robust", "robust_scaler":
		return RobustScaler, nil
	case "standardscaler", "ss", "stdsc", "standard", "standard_scaler":
		return StandardScaler, nil
	case "minmaxscaler", "minmax", "mmx", "minmax_scaler", "mmscaler":
		return MinMaxScaler, nil
	}
	return "", fmt.Errorf("unknown scaler %q", name)
}

// Scaler maps each feature to (x-Center)/Scale.
type Scaler struct {
	Kind   ScalerKind
	Center []float64
	Scale  []float64
}

// FitScaler learns per-feature centre and scale from X. Robust scaling uses
// the median and interquartile range, standard scaling the mean and
// population standard deviation, min-max scaling the minimum and range.
// A zero scale is replaced by 1.
func FitScaler(kind ScalerKind, X [][]float64) (*Scaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit %s: no rows", kind)
	}
	p := len(X[0])
	s := &Scaler{Kind: kind, Center: make([]float64, p), Scale: make([]float64, p)}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i, x := range X {
			col[i] = x[j]
		}
		switch kind {
		case RobustScaler:
			q := stats.Percentiles(col, 0.25, 0.5, 0.75)
			s.Center[j], s.Scale[j] = q[1], q[2]-q[0]
		case StandardScaler:
			mean, variance := stat.MeanVariance(col, nil)
			n := float64(len(col))
			if n > 1 {
				variance *= (n - 1) / n
			} else {
				variance = 0
			}
			s.Center[j], s.Scale[j] = mean, math.Sqrt(variance)
		case MinMaxScaler:
			lo, hi := floats.Min(col), floats.Max(col)
			s.Center[j], s.Scale[j] = lo, hi-lo
		default:
			return nil, fmt.Errorf("unknown scaler %q", kind)
		}
		if s.Scale[j] == 0 || math.IsNaN(s.Scale[j]) {
			s.Scale[j] = 1
		}
	}
	return s, nil
}

// Transform scales one feature vector.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Center[j]) / s.Scale[j]
	}
	return out
}

// TransformAll scales every row of X.
func (s *Scaler) TransformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, x := range X {
		out[i] = s.Transform(x)
	}
	return out
}
