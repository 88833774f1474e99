package model

import (
	"fmt"
	"math"
)

// StandardScaler standardizes columns to zero mean and unit variance using
// the population standard deviation. Constant columns are only centered.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes column statistics from X.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return fmt.Errorf("%w: empty input", ErrShapeMismatch)
	}
	n, p := len(X), len(X[0])

	mean := make([]float64, p)
	for _, row := range X {
		if len(row) != p {
			return fmt.Errorf("%w: ragged input", ErrShapeMismatch)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	scale := make([]float64, p)
	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(n))
		if scale[j] < 1e-12 {
			scale[j] = 1
		}
	}

	s.Mean, s.Scale = mean, scale
	return nil
}

// Transform returns a standardized copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	return s.apply(X, func(v, m, sc float64) float64 { return (v - m) / sc })
}

// InverseTransform maps standardized rows back to original units.
func (s *StandardScaler) InverseTransform(X [][]float64) ([][]float64, error) {
	return s.apply(X, func(v, m, sc float64) float64 { return v*sc + m })
}

// FitTransform fits on X and returns it standardized.
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

func (s *StandardScaler) apply(X [][]float64, f func(v, mean, scale float64) float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), len(s.Mean))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = f(v, s.Mean[j], s.Scale[j])
		}
		out[i] = r
	}
	return out, nil
}
