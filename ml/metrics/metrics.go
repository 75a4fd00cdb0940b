// Package metrics provides the binary classification scores the trainer
// selects and gates models on.
package metrics

import (
	"math/rand"
	"sort"
)

// Report bundles the evaluation scores persisted in artifact metadata.
type Report struct {
	ROCAUC    float64 `json:"roc_auc"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluate scores class-1 probabilities against labels at a 0.5 cut.
func Evaluate(y []int, scores []float64) Report {
	var tp, fp, tn, fn float64
	for i := range y {
		predicted := scores[i] >= 0.5
		actual := y[i] == 1
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}
	report := Report{ROCAUC: ROCAUC(y, scores)}
	total := tp + fp + tn + fn
	if total > 0 {
		report.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		report.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		report.Recall = tp / (tp + fn)
	}
	if report.Precision+report.Recall > 0 {
		report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
	}
	return report
}

// ROCAUC is the rank statistic (Mann-Whitney) with midranks for ties.
// Degenerate single-class inputs score 0.
func ROCAUC(y []int, scores []float64) float64 {
	n := len(y)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		// midrank for the tie group [i, j)
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = rank
		}
		i = j
	}

	var positives, rankSum float64
	for i := range y {
		if y[i] == 1 {
			positives++
			rankSum += ranks[i]
		}
	}
	negatives := float64(n) - positives
	if positives == 0 || negatives == 0 {
		return 0
	}
	return (rankSum - positives*(positives+1)/2) / (positives * negatives)
}

// StratifiedSplit partitions indices into train/test keeping the class
// ratio. testSize is a fraction in (0,1).
func StratifiedSplit(y []int, testSize float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	for _, label := range labels {
		members := byClass[label]
		rng.Shuffle(len(members), func(a, b int) { members[a], members[b] = members[b], members[a] })
		cut := int(float64(len(members)) * testSize)
		if cut == 0 && len(members) > 1 {
			cut = 1
		}
		test = append(test, members[:cut]...)
		train = append(train, members[cut:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// StratifiedKFold returns k test-index folds with per-class round-robin
// assignment.
func StratifiedKFold(y []int, k int, seed int64) [][]int {
	if k < 2 {
		k = 2
	}
	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	next := 0
	for _, label := range labels {
		members := byClass[label]
		rng.Shuffle(len(members), func(a, b int) { members[a], members[b] = members[b], members[a] })
		for _, i := range members {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	for _, fold := range folds {
		sort.Ints(fold)
	}
	return folds
}
