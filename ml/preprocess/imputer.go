package preprocess

import (
	"math"
	"sort"
)

// Imputers run at training time only: the serving path maps missing inputs
// to zero before any model sees them. Missing cells are NaN. All imputers
// mutate X in place and leave fully missing columns at zero.

func ImputeMean(X [][]float64) {
	imputeColumnwise(X, func(observed []float64) float64 {
		var sum float64
		for _, v := range observed {
			sum += v
		}
		return sum / float64(len(observed))
	})
}

func ImputeMedian(X [][]float64) {
	imputeColumnwise(X, func(observed []float64) float64 {
		sort.Float64s(observed)
		return quantile(observed, 0.5)
	})
}

// ImputeMode fills with the most frequent observed value; ties go to the
// smaller value so the result is deterministic.
func ImputeMode(X [][]float64) {
	imputeColumnwise(X, func(observed []float64) float64 {
		counts := make(map[float64]int, len(observed))
		for _, v := range observed {
			counts[v]++
		}
		best, bestCount := 0.0, -1
		keys := make([]float64, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Float64s(keys)
		for _, k := range keys {
			if counts[k] > bestCount {
				best, bestCount = k, counts[k]
			}
		}
		return best
	})
}

// ImputeKNN fills each missing cell with the mean of that column over the k
// rows nearest in euclidean distance across the dimensions both rows
// observe. Rows with no usable neighbours fall back to the column mean.
func ImputeKNN(X [][]float64, k int) {
	if k <= 0 {
		k = 5
	}
	original := make([][]float64, len(X))
	for i := range X {
		original[i] = append([]float64{}, X[i]...)
	}

	for i := range X {
		for j := range X[i] {
			if !math.IsNaN(original[i][j]) {
				continue
			}
			X[i][j] = knnFill(original, i, j, k)
		}
	}
}

type neighbour struct {
	index    int
	distance float64
}

func knnFill(X [][]float64, row, col, k int) float64 {
	var candidates []neighbour
	for i := range X {
		if i == row || math.IsNaN(X[i][col]) {
			continue
		}
		dist, shared := partialDistance(X[row], X[i])
		if shared == 0 {
			continue
		}
		candidates = append(candidates, neighbour{index: i, distance: dist})
	}
	if len(candidates) == 0 {
		return columnMean(X, col)
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].distance != candidates[b].distance {
			return candidates[a].distance < candidates[b].distance
		}
		return candidates[a].index < candidates[b].index
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	var sum float64
	for _, n := range candidates {
		sum += X[n.index][col]
	}
	return sum / float64(len(candidates))
}

// partialDistance is the normalized euclidean distance over dimensions
// observed in both rows.
func partialDistance(a, b []float64) (float64, int) {
	var sum float64
	shared := 0
	for j := range a {
		if math.IsNaN(a[j]) || math.IsNaN(b[j]) {
			continue
		}
		d := a[j] - b[j]
		sum += d * d
		shared++
	}
	if shared == 0 {
		return 0, 0
	}
	return math.Sqrt(sum / float64(shared)), shared
}

func columnMean(X [][]float64, col int) float64 {
	var sum float64
	count := 0
	for i := range X {
		if math.IsNaN(X[i][col]) {
			continue
		}
		sum += X[i][col]
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func imputeColumnwise(X [][]float64, fill func(observed []float64) float64) {
	if len(X) == 0 {
		return
	}
	for j := range X[0] {
		var observed []float64
		for i := range X {
			if !math.IsNaN(X[i][j]) {
				observed = append(observed, X[i][j])
			}
		}
		value := 0.0
		if len(observed) > 0 {
			value = fill(observed)
		}
		for i := range X {
			if math.IsNaN(X[i][j]) {
				X[i][j] = value
			}
		}
	}
}
