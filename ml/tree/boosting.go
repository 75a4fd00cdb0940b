package tree

import (
	"encoding/json"
	"math"
	"math/rand"

	"maternalcare.com/mrp/ml"
)

const TypeGradientBoosting = "gradient_boosting"

func init() {
	ml.RegisterPredictor(TypeGradientBoosting, func(params json.RawMessage) (ml.Predictor, error) {
		var m GradientBoosting
		return &m, json.Unmarshal(params, &m)
	})
}

// GradientBoosting is binary log-loss boosting: regression trees fit to the
// gradient, Newton-step leaves, sigmoid link at predict time.
type GradientBoosting struct {
	InitScore    float64   `json:"init_score"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []Tree    `json:"trees"`
	NFeatures    int       `json:"n_features"`
	Importances  []float64 `json:"importances"`
}

func (m *GradientBoosting) Type() string { return TypeGradientBoosting }

func (m *GradientBoosting) PredictProba(x []float64) ([]float64, error) {
	if err := ml.CheckDimension(m.NFeatures, len(x)); err != nil {
		return nil, err
	}
	score := m.InitScore
	for i := range m.Trees {
		score += m.LearningRate * m.Trees[i].PredictValue(x)
	}
	p1 := sigmoid(score)
	return []float64{1 - p1, p1}, nil
}

func (m *GradientBoosting) FeatureImportances() []float64 {
	return m.Importances
}

type BoostingOptions struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
}

func DefaultBoostingOptions() BoostingOptions {
	return BoostingOptions{NEstimators: 100, LearningRate: 0.1, MaxDepth: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 42}
}

func FitBoosting(X [][]float64, y []int, opts BoostingOptions) *GradientBoosting {
	if opts.NEstimators <= 0 {
		opts.NEstimators = 100
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.1
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
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
	model := &GradientBoosting{
		LearningRate: opts.LearningRate,
		NFeatures:    cols,
		Importances:  make([]float64, cols),
	}
	if len(X) == 0 {
		return model
	}

	var positives float64
	for _, label := range y {
		if label == 1 {
			positives++
		}
	}
	prior := positives / float64(len(y))
	prior = math.Min(math.Max(prior, 1e-6), 1-1e-6)
	model.InitScore = math.Log(prior / (1 - prior))

	scores := make([]float64, len(X))
	for i := range scores {
		scores[i] = model.InitScore
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	grad := make([]float64, len(X))
	hess := make([]float64, len(X))

	for t := 0; t < opts.NEstimators; t++ {
		for i := range X {
			p := sigmoid(scores[i])
			grad[i] = float64(y[i]) - p
			hess[i] = p * (1 - p)
		}
		tgt := &regressionTarget{grad: grad, hess: hess}
		built, importances := build(X, tgt, buildParams{
			maxDepth:        opts.MaxDepth,
			minSamplesSplit: opts.MinSamplesSplit,
			minSamplesLeaf:  opts.MinSamplesLeaf,
			rng:             rng,
		})
		model.Trees = append(model.Trees, built)
		for j := range importances {
			model.Importances[j] += importances[j]
		}
		for i := range X {
			scores[i] += opts.LearningRate * built.PredictValue(X[i])
		}
	}
	normalize(model.Importances)
	return model
}
