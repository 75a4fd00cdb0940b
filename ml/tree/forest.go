package tree

import (
	"encoding/json"
	"math"
	"math/rand"

	"maternalcare.com/mrp/ml"
)

const TypeRandomForest = "random_forest"

func init() {
	ml.RegisterPredictor(TypeRandomForest, func(params json.RawMessage) (ml.Predictor, error) {
		var m RandomForest
		return &m, json.Unmarshal(params, &m)
	})
}

type RandomForest struct {
	Trees       []Tree    `json:"trees"`
	NFeatures   int       `json:"n_features"`
	Importances []float64 `json:"importances"`
}

func (m *RandomForest) Type() string { return TypeRandomForest }

func (m *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if err := ml.CheckDimension(m.NFeatures, len(x)); err != nil {
		return nil, err
	}
	if len(m.Trees) == 0 {
		return nil, &ml.DimensionError{Want: m.NFeatures, Got: len(x)}
	}
	var p0, p1 float64
	for i := range m.Trees {
		dist := m.Trees[i].PredictDist(x)
		p0 += dist[0]
		p1 += dist[1]
	}
	n := float64(len(m.Trees))
	return []float64{p0 / n, p1 / n}, nil
}

func (m *RandomForest) FeatureImportances() []float64 {
	return m.Importances
}

type ForestOptions struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Balanced        bool
	Seed            int64
}

func DefaultForestOptions() ForestOptions {
	return ForestOptions{NEstimators: 100, MinSamplesSplit: 2, MinSamplesLeaf: 1, Balanced: true, Seed: 42}
}

// FitForest trains a bagged ensemble: bootstrap rows per tree and sqrt(p)
// candidate features per split.
func FitForest(X [][]float64, y []int, opts ForestOptions) *RandomForest {
	if opts.NEstimators <= 0 {
		opts.NEstimators = 100
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	if opts.MinSamplesLeaf < 1 {
		opts.MinSamplesLeaf = 1
	}

	cols := 0
	if len(X) > 0 {
		cols = len(X[0])
	}
	model := &RandomForest{NFeatures: cols, Importances: make([]float64, cols)}
	if len(X) == 0 {
		return model
	}

	weights := make([]float64, len(y))
	if opts.Balanced {
		weights = balancedWeights(y)
	} else {
		for i := range weights {
			weights[i] = 1
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	mtry := int(math.Sqrt(float64(cols)))
	if mtry < 1 {
		mtry = 1
	}

	for t := 0; t < opts.NEstimators; t++ {
		sampleX := make([][]float64, len(X))
		sampleY := make([]int, len(y))
		sampleW := make([]float64, len(y))
		for i := range X {
			pick := rng.Intn(len(X))
			sampleX[i] = X[pick]
			sampleY[i] = y[pick]
			sampleW[i] = weights[pick]
		}
		tgt := &classificationTarget{y: sampleY, weights: sampleW}
		built, importances := build(sampleX, tgt, buildParams{
			maxDepth:        opts.MaxDepth,
			minSamplesSplit: opts.MinSamplesSplit,
			minSamplesLeaf:  opts.MinSamplesLeaf,
			maxFeatures:     mtry,
			rng:             rng,
		})
		model.Trees = append(model.Trees, built)
		for j := range importances {
			model.Importances[j] += importances[j]
		}
	}
	normalize(model.Importances)
	return model
}
