// Package model fits short-window regression models that predict the next
// day's temperature range from recent daily observations.
package model

import (
	"errors"
	"fmt"
)

// Model errors.
var (
	ErrInsufficientHistory = errors.New("insufficient history to fit model")
	ErrNotFitted           = errors.New("model is not fitted")
	ErrShapeMismatch       = errors.New("matrix shape mismatch")
	ErrUnknownStrategy     = errors.New("unknown model strategy")
)

// MinTrainingPairs is the fewest supervised pairs a model is fitted on.
const MinTrainingPairs = 2

// Regressor is a multi-output regression model.
type Regressor interface {
	// Fit trains on rows of X with matching rows of targets Y.
	Fit(X, Y [][]float64) error

	// Predict returns one target row per row of X.
	Predict(X [][]float64) ([][]float64, error)

	// ID identifies the model family and version.
	ID() string
}

// Strategy selects a Regressor implementation.
type Strategy string

const (
	// StrategyLinear is a multi-output least-squares linear model.
	StrategyLinear Strategy = "linear"

	// StrategyGBDT is gradient-boosted trees with a joint multi-target loss.
	StrategyGBDT Strategy = "gbdt"
)

// ParseStrategy validates s.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLinear, StrategyGBDT:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// New returns a fresh, unfitted Regressor for the strategy.
func New(s Strategy) (Regressor, error) {
	switch s {
	case StrategyLinear:
		return NewLinear(), nil
	case StrategyGBDT:
		return NewGBDT(DefaultGBDTConfig()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// shape validates that X and Y are non-empty rectangular matrices with the
// same number of rows, and returns rows, feature count and target count.
func shape(X, Y [][]float64) (n, p, k int, err error) {
	n = len(X)
	if n == 0 || len(Y) != n {
		return 0, 0, 0, fmt.Errorf("%w: %d feature rows, %d target rows", ErrShapeMismatch, len(X), len(Y))
	}
	p, k = len(X[0]), len(Y[0])
	if p == 0 || k == 0 {
		return 0, 0, 0, fmt.Errorf("%w: empty rows", ErrShapeMismatch)
	}
	for i := range X {
		if len(X[i]) != p || len(Y[i]) != k {
			return 0, 0, 0, fmt.Errorf("%w: ragged row %d", ErrShapeMismatch, i)
		}
	}
	return n, p, k, nil
}
