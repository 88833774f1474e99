package model

import (
	"fmt"
	"sort"
)

// GBDTModelID identifies the gradient-boosted tree model.
const GBDTModelID = "gbdt-multirmse-1.0"

// GBDTConfig holds boosting hyperparameters.
type GBDTConfig struct {
	// Trees is the number of boosting rounds.
	Trees int

	// LearningRate shrinks each tree's contribution.
	LearningRate float64

	// MaxDepth bounds tree depth.
	MaxDepth int

	// MinSamplesLeaf is the fewest rows a leaf may hold.
	MinSamplesLeaf int
}

// DefaultGBDTConfig returns the settings used for daily forecasting.
func DefaultGBDTConfig() GBDTConfig {
	return GBDTConfig{
		Trees:          100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
	}
}

// GBDT is gradient boosting over regression trees with a joint
// multi-target squared-error loss: every tree splits on the summed
// reduction in squared error across all targets and its leaves hold a
// full target vector.
type GBDT struct {
	cfg   GBDTConfig
	base  []float64
	trees []*treeNode
	p     int
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     []float64 // set on leaves only
}

// NewGBDT returns an unfitted model.
func NewGBDT(cfg GBDTConfig) *GBDT {
	def := DefaultGBDTConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}
	return &GBDT{cfg: cfg}
}

// ID implements Regressor.
func (m *GBDT) ID() string {
	return GBDTModelID
}

// Fit implements Regressor.
func (m *GBDT) Fit(X, Y [][]float64) error {
	n, p, k, err := shape(X, Y)
	if err != nil {
		return err
	}

	base := make([]float64, k)
	for _, y := range Y {
		for j, v := range y {
			base[j] += v
		}
	}
	for j := range base {
		base[j] /= float64(n)
	}

	pred := make([][]float64, n)
	for i := range pred {
		pred[i] = append([]float64(nil), base...)
	}

	residual := make([][]float64, n)
	for i := range residual {
		residual[i] = make([]float64, k)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	trees := make([]*treeNode, 0, m.cfg.Trees)
	for t := 0; t < m.cfg.Trees; t++ {
		for i := range Y {
			for j := range Y[i] {
				residual[i][j] = Y[i][j] - pred[i][j]
			}
		}

		tree := m.grow(X, residual, idx, 0)
		trees = append(trees, tree)

		for i, x := range X {
			leaf := tree.leaf(x)
			for j := range pred[i] {
				pred[i][j] += m.cfg.LearningRate * leaf[j]
			}
		}
	}

	m.base, m.trees, m.p = base, trees, p
	return nil
}

// Predict implements Regressor.
func (m *GBDT) Predict(X [][]float64) ([][]float64, error) {
	if m.trees == nil {
		return nil, ErrNotFitted
	}

	out := make([][]float64, len(X))
	for r, x := range X {
		if len(x) != m.p {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, r, len(x), m.p)
		}
		pred := append([]float64(nil), m.base...)
		for _, tree := range m.trees {
			leaf := tree.leaf(x)
			for j := range pred {
				pred[j] += m.cfg.LearningRate * leaf[j]
			}
		}
		out[r] = pred
	}
	return out, nil
}

func (n *treeNode) leaf(x []float64) []float64 {
	for n.value == nil {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// grow builds a subtree over the rows in idx, fitting residual targets R.
func (m *GBDT) grow(X, R [][]float64, idx []int, depth int) *treeNode {
	if depth >= m.cfg.MaxDepth || len(idx) < 2*m.cfg.MinSamplesLeaf {
		return &treeNode{value: meanRows(R, idx)}
	}

	feature, threshold, ok := m.bestSplit(X, R, idx)
	if !ok {
		return &treeNode{value: meanRows(R, idx)}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      m.grow(X, R, left, depth+1),
		right:     m.grow(X, R, right, depth+1),
	}
}

// bestSplit scans every feature for the threshold that minimizes the summed
// squared error of both children across all targets.
func (m *GBDT) bestSplit(X, R [][]float64, idx []int) (feature int, threshold float64, ok bool) {
	k := len(R[idx[0]])
	n := len(idx)

	totalSum := make([]float64, k)
	totalSq := 0.0
	for _, i := range idx {
		for j, v := range R[i] {
			totalSum[j] += v
			totalSq += v * v
		}
	}
	parentSSE := sse(totalSum, totalSq, n)
	bestSSE := parentSSE - 1e-12

	order := append([]int(nil), idx...)
	leftSum := make([]float64, k)

	for f := range X[idx[0]] {
		sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		for j := range leftSum {
			leftSum[j] = 0
		}
		leftSq := 0.0

		for pos := 0; pos < n-1; pos++ {
			row := R[order[pos]]
			for j, v := range row {
				leftSum[j] += v
				leftSq += v * v
			}

			nl := pos + 1
			nr := n - nl
			if nl < m.cfg.MinSamplesLeaf || nr < m.cfg.MinSamplesLeaf {
				continue
			}
			lo, hi := X[order[pos]][f], X[order[pos+1]][f]
			if lo == hi {
				continue
			}

			rightSum := make([]float64, k)
			for j := range rightSum {
				rightSum[j] = totalSum[j] - leftSum[j]
			}
			split := sse(leftSum, leftSq, nl) + sse(rightSum, totalSq-leftSq, nr)
			if split < bestSSE {
				bestSSE = split
				feature, threshold, ok = f, (lo+hi)/2, true
			}
		}
	}
	return feature, threshold, ok
}

// sse is the squared error around the per-target mean, summed over targets,
// computed from running sums.
func sse(sum []float64, sq float64, n int) float64 {
	s := sq
	for _, v := range sum {
		s -= v * v / float64(n)
	}
	return s
}

func meanRows(R [][]float64, idx []int) []float64 {
	mean := make([]float64, len(R[idx[0]]))
	for _, i := range idx {
		for j, v := range R[i] {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(idx))
	}
	return mean
}
