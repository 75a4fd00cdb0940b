// Package tree implements CART decision trees and the two ensembles built
// on them (random forest, gradient boosting), with JSON-serializable
// parameters and split-gain feature importances.
package tree

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one element of a flattened tree. Children are indices into the
// node slice; leaves carry either a class distribution or a raw value.
type Node struct {
	Feature   int        `json:"f"`
	Threshold float64    `json:"t"`
	Left      int        `json:"l"`
	Right     int        `json:"r"`
	Leaf      bool       `json:"leaf"`
	Dist      [2]float64 `json:"dist"`
	Value     float64    `json:"v"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) leafFor(x []float64) *Node {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.Leaf {
			return node
		}
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// PredictDist walks a classification tree to its leaf distribution.
func (t *Tree) PredictDist(x []float64) [2]float64 {
	return t.leafFor(x).Dist
}

// PredictValue walks a regression tree to its leaf value.
func (t *Tree) PredictValue(x []float64) float64 {
	return t.leafFor(x).Value
}

type buildParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means all
	rng             *rand.Rand
}

type splitResult struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

// classificationTarget drives gini splits and distribution leaves.
type classificationTarget struct {
	y       []int
	weights []float64
}

// regressionTarget drives variance splits and Newton-step leaves
// (gradient/hessian pairs, as used by the boosting stages).
type regressionTarget struct {
	grad []float64
	hess []float64
}

type target interface {
	impurity(idx []int) float64
	totalWeight(idx []int) float64
	leaf(idx []int) Node
}

func (c *classificationTarget) impurity(idx []int) float64 {
	var w0, w1 float64
	for _, i := range idx {
		if c.y[i] == 1 {
			w1 += c.weights[i]
		} else {
			w0 += c.weights[i]
		}
	}
	total := w0 + w1
	if total == 0 {
		return 0
	}
	p0, p1 := w0/total, w1/total
	return 1 - p0*p0 - p1*p1
}

func (c *classificationTarget) totalWeight(idx []int) float64 {
	var total float64
	for _, i := range idx {
		total += c.weights[i]
	}
	return total
}

func (c *classificationTarget) leaf(idx []int) Node {
	var w0, w1 float64
	for _, i := range idx {
		if c.y[i] == 1 {
			w1 += c.weights[i]
		} else {
			w0 += c.weights[i]
		}
	}
	total := w0 + w1
	if total == 0 {
		return Node{Leaf: true, Dist: [2]float64{0.5, 0.5}}
	}
	return Node{Leaf: true, Dist: [2]float64{w0 / total, w1 / total}}
}

func (r *regressionTarget) impurity(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += r.grad[i]
	}
	mean := sum / float64(len(idx))
	var variance float64
	for _, i := range idx {
		d := r.grad[i] - mean
		variance += d * d
	}
	return variance / float64(len(idx))
}

func (r *regressionTarget) totalWeight(idx []int) float64 {
	return float64(len(idx))
}

func (r *regressionTarget) leaf(idx []int) Node {
	var gradSum, hessSum float64
	for _, i := range idx {
		gradSum += r.grad[i]
		hessSum += r.hess[i]
	}
	return Node{Leaf: true, Value: gradSum / (hessSum + 1e-9)}
}

type builder struct {
	X           [][]float64
	tgt         target
	params      buildParams
	nodes       []Node
	importances []float64
}

func build(X [][]float64, tgt target, params buildParams) (Tree, []float64) {
	cols := 0
	if len(X) > 0 {
		cols = len(X[0])
	}
	b := &builder{X: X, tgt: tgt, params: params, importances: make([]float64, cols)}
	all := make([]int, len(X))
	for i := range all {
		all[i] = i
	}
	b.grow(all, 0)
	return Tree{Nodes: b.nodes}, b.importances
}

func (b *builder) grow(idx []int, depth int) int {
	nodeIdx := len(b.nodes)
	if len(idx) < b.params.minSamplesSplit ||
		(b.params.maxDepth > 0 && depth >= b.params.maxDepth) ||
		b.tgt.impurity(idx) == 0 {
		b.nodes = append(b.nodes, b.tgt.leaf(idx))
		return nodeIdx
	}

	split := b.bestSplit(idx)
	if split == nil {
		b.nodes = append(b.nodes, b.tgt.leaf(idx))
		return nodeIdx
	}

	b.importances[split.feature] += split.gain * b.tgt.totalWeight(idx)

	b.nodes = append(b.nodes, Node{Feature: split.feature, Threshold: split.threshold})
	left := b.grow(split.left, depth+1)
	right := b.grow(split.right, depth+1)
	b.nodes[nodeIdx].Left = left
	b.nodes[nodeIdx].Right = right
	return nodeIdx
}

func (b *builder) bestSplit(idx []int) *splitResult {
	cols := len(b.X[0])
	candidates := make([]int, cols)
	for j := range candidates {
		candidates[j] = j
	}
	if b.params.maxFeatures > 0 && b.params.maxFeatures < cols {
		b.params.rng.Shuffle(cols, func(a, c int) {
			candidates[a], candidates[c] = candidates[c], candidates[a]
		})
		candidates = candidates[:b.params.maxFeatures]
	}

	parentImpurity := b.tgt.impurity(idx)
	var best *splitResult

	sorted := make([]int, len(idx))
	for _, feature := range candidates {
		copy(sorted, idx)
		f := feature
		sort.Slice(sorted, func(a, c int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[c]][f]
		})
		for cut := b.params.minSamplesLeaf; cut <= len(sorted)-b.params.minSamplesLeaf; cut++ {
			lo := b.X[sorted[cut-1]][f]
			hi := b.X[sorted[cut]][f]
			if lo == hi {
				continue
			}
			left := sorted[:cut]
			right := sorted[cut:]
			leftW := b.tgt.totalWeight(left)
			rightW := b.tgt.totalWeight(right)
			total := leftW + rightW
			if total == 0 {
				continue
			}
			gain := parentImpurity -
				(leftW/total)*b.tgt.impurity(left) -
				(rightW/total)*b.tgt.impurity(right)
			if gain <= 1e-12 {
				continue
			}
			if best == nil || gain > best.gain {
				best = &splitResult{
					feature:   f,
					threshold: (lo + hi) / 2,
					gain:      gain,
					left:      append([]int{}, left...),
					right:     append([]int{}, right...),
				}
			}
		}
	}
	return best
}

func normalize(importances []float64) []float64 {
	var total float64
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for j := range importances {
			importances[j] /= total
		}
	}
	return importances
}

func balancedWeights(y []int) []float64 {
	var positives int
	for _, label := range y {
		if label == 1 {
			positives++
		}
	}
	negatives := len(y) - positives
	posWeight, negWeight := 1.0, 1.0
	if positives > 0 {
		posWeight = float64(len(y)) / (2 * float64(positives))
	}
	if negatives > 0 {
		negWeight = float64(len(y)) / (2 * float64(negatives))
	}
	weights := make([]float64, len(y))
	for i, label := range y {
		if label == 1 {
			weights[i] = posWeight
		} else {
			weights[i] = negWeight
		}
	}
	return weights
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
