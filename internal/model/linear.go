package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearModelID identifies the linear model.
const LinearModelID = "linear-regression-1.0"

// ridgeLambda keeps the normal equations positive definite when the window
// has fewer rows than features or contains constant columns. It is small
// enough that the fit matches the minimum-norm least-squares solution.
const ridgeLambda = 1e-6

// Linear is a multi-output linear regression with intercept, fitted jointly
// for all targets.
type Linear struct {
	weights   *mat.Dense // p x k
	intercept []float64  // k
}

// NewLinear returns an unfitted linear model.
func NewLinear() *Linear {
	return &Linear{}
}

// ID implements Regressor.
func (m *Linear) ID() string {
	return LinearModelID
}

// Fit solves (XcᵀXc + λI) W = XcᵀYc on column-centered data.
func (m *Linear) Fit(X, Y [][]float64) error {
	n, p, k, err := shape(X, Y)
	if err != nil {
		return err
	}

	xm, ym := dense(X), dense(Y)
	xMean, yMean := colMeans(xm), colMeans(ym)

	xc := mat.NewDense(n, p, nil)
	xc.Apply(func(_, j int, v float64) float64 { return v - xMean[j] }, xm)
	yc := mat.NewDense(n, k, nil)
	yc.Apply(func(_, j int, v float64) float64 { return v - yMean[j] }, ym)

	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, xc.T())
	for i := 0; i < p; i++ {
		gram.SetSym(i, i, gram.At(i, i)+ridgeLambda)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return fmt.Errorf("linear fit: normal equations are not positive definite")
	}

	var xty mat.Dense
	xty.Mul(xc.T(), yc)

	var w mat.Dense
	if err := chol.SolveTo(&w, &xty); err != nil {
		return fmt.Errorf("linear fit: %w", err)
	}

	intercept := make([]float64, k)
	for j := 0; j < k; j++ {
		b := yMean[j]
		for i := 0; i < p; i++ {
			b -= xMean[i] * w.At(i, j)
		}
		intercept[j] = b
	}

	m.weights, m.intercept = &w, intercept
	return nil
}

// Predict implements Regressor.
func (m *Linear) Predict(X [][]float64) ([][]float64, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	p, k := m.weights.Dims()

	out := make([][]float64, len(X))
	for r, row := range X {
		if len(row) != p {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, r, len(row), p)
		}
		pred := make([]float64, k)
		for j := 0; j < k; j++ {
			v := m.intercept[j]
			for i, x := range row {
				v += x * m.weights.At(i, j)
			}
			pred[j] = v
		}
		out[r] = pred
	}
	return out, nil
}

func dense(rows [][]float64) *mat.Dense {
	n, c := len(rows), len(rows[0])
	d := mat.NewDense(n, c, nil)
	for i, row := range rows {
		d.SetRow(i, row)
	}
	return d
}

func colMeans(m *mat.Dense) []float64 {
	n, c := m.Dims()
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		means[j] = mat.Sum(m.ColView(j)) / float64(n)
	}
	return means
}
