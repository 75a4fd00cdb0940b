// Package linear implements a binary logistic regression with the same
// predict_proba contract as the tree ensembles.
package linear

import (
	"encoding/json"
	"math"

	"maternalcare.com/mrp/ml"
)

const TypeLogistic = "logistic_regression"

func init() {
	ml.RegisterPredictor(TypeLogistic, func(params json.RawMessage) (ml.Predictor, error) {
		var m LogisticRegression
		return &m, json.Unmarshal(params, &m)
	})
}

type LogisticRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *LogisticRegression) Type() string { return TypeLogistic }

func (m *LogisticRegression) PredictProba(x []float64) ([]float64, error) {
	if err := ml.CheckDimension(len(m.Coef), len(x)); err != nil {
		return nil, err
	}
	z := m.Intercept
	for j := range x {
		z += m.Coef[j] * x[j]
	}
	p1 := sigmoid(z)
	if math.IsNaN(p1) {
		return nil, &ml.DimensionError{Want: len(m.Coef), Got: len(x)}
	}
	return []float64{1 - p1, p1}, nil
}

// FeatureImportances are normalized absolute coefficients.
func (m *LogisticRegression) FeatureImportances() []float64 {
	out := make([]float64, len(m.Coef))
	var total float64
	for j, c := range m.Coef {
		out[j] = math.Abs(c)
		total += out[j]
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// FitOptions mirror the sklearn knobs the trainer searches over.
type FitOptions struct {
	C            float64 // inverse of L2 strength
	MaxIter      int
	LearningRate float64
	Balanced     bool // reweight classes inversely to frequency
}

func DefaultFitOptions() FitOptions {
	return FitOptions{C: 1.0, MaxIter: 1000, LearningRate: 0.1, Balanced: true}
}

// Fit trains by full-batch gradient descent with L2 regularization. Inputs
// are expected to be scaled; the learning rate is not adaptive.
func Fit(X [][]float64, y []int, opts FitOptions) *LogisticRegression {
	if opts.MaxIter <= 0 {
		opts.MaxIter = 1000
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.1
	}
	if opts.C <= 0 {
		opts.C = 1.0
	}

	n := len(X)
	cols := 0
	if n > 0 {
		cols = len(X[0])
	}
	m := &LogisticRegression{Coef: make([]float64, cols)}
	if n == 0 {
		return m
	}

	weights := sampleWeights(y, opts.Balanced)
	lambda := 1.0 / (opts.C * float64(n))

	gradient := make([]float64, cols)
	for iter := 0; iter < opts.MaxIter; iter++ {
		for j := range gradient {
			gradient[j] = 0
		}
		var gradIntercept float64
		for i := range X {
			z := m.Intercept
			for j := range X[i] {
				z += m.Coef[j] * X[i][j]
			}
			err := (sigmoid(z) - float64(y[i])) * weights[i]
			gradIntercept += err
			for j := range X[i] {
				gradient[j] += err * X[i][j]
			}
		}
		var maxStep float64
		for j := range gradient {
			step := opts.LearningRate * (gradient[j]/float64(n) + lambda*m.Coef[j])
			m.Coef[j] -= step
			if math.Abs(step) > maxStep {
				maxStep = math.Abs(step)
			}
		}
		m.Intercept -= opts.LearningRate * gradIntercept / float64(n)
		if maxStep < 1e-7 {
			break
		}
	}
	return m
}

func sampleWeights(y []int, balanced bool) []float64 {
	weights := make([]float64, len(y))
	if !balanced {
		for i := range weights {
			weights[i] = 1
		}
		return weights
	}
	var positives int
	for _, label := range y {
		if label == 1 {
			positives++
		}
	}
	negatives := len(y) - positives
	// n / (2 * class count), the sklearn "balanced" formula
	posWeight, negWeight := 1.0, 1.0
	if positives > 0 {
		posWeight = float64(len(y)) / (2 * float64(positives))
	}
	if negatives > 0 {
		negWeight = float64(len(y)) / (2 * float64(negatives))
	}
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
