// Package ensemble wraps several fitted predictors behind the same
// predict_proba contract, by majority vote or probability-weighted average.
package ensemble

import (
	"encoding/json"
	"errors"

	"maternalcare.com/mrp/ml"
)

const (
	TypeEnsemble = "ensemble"

	MethodMajorityVote    = "majority_vote"
	MethodWeightedAverage = "weighted_average"
)

func init() {
	ml.RegisterPredictor(TypeEnsemble, func(params json.RawMessage) (ml.Predictor, error) {
		var e Ensemble
		return &e, json.Unmarshal(params, &e)
	})
}

type Ensemble struct {
	Method  string
	Weights []float64
	Members []ml.Predictor
}

type ensembleJSON struct {
	Method  string            `json:"method"`
	Weights []float64         `json:"weights"`
	Members []json.RawMessage `json:"members"`
}

func (e *Ensemble) Type() string { return TypeEnsemble }

func (e *Ensemble) MarshalJSON() ([]byte, error) {
	out := ensembleJSON{Method: e.Method, Weights: e.Weights}
	for _, member := range e.Members {
		encoded, err := ml.EncodePredictor(member)
		if err != nil {
			return nil, err
		}
		out.Members = append(out.Members, encoded)
	}
	return json.Marshal(out)
}

func (e *Ensemble) UnmarshalJSON(data []byte) error {
	var raw ensembleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Method = raw.Method
	e.Weights = raw.Weights
	e.Members = e.Members[:0]
	for _, member := range raw.Members {
		decoded, err := ml.DecodePredictor(member)
		if err != nil {
			return err
		}
		e.Members = append(e.Members, decoded)
	}
	return nil
}

func (e *Ensemble) PredictProba(x []float64) ([]float64, error) {
	if len(e.Members) == 0 {
		return nil, errors.New("ensemble has no members")
	}
	switch e.Method {
	case MethodMajorityVote:
		return e.majorityVote(x)
	default:
		return e.weightedAverage(x)
	}
}

func (e *Ensemble) majorityVote(x []float64) ([]float64, error) {
	votes := 0
	var sumP1 float64
	for _, member := range e.Members {
		proba, err := member.PredictProba(x)
		if err != nil {
			return nil, err
		}
		if proba[1] >= 0.5 {
			votes++
		}
		sumP1 += proba[1]
	}
	// The vote picks the class; the reported probability stays the mean so
	// downstream thresholding remains continuous.
	p1 := sumP1 / float64(len(e.Members))
	if votes*2 > len(e.Members) && p1 < 0.5 {
		p1 = 0.5
	}
	if votes*2 < len(e.Members) && p1 >= 0.5 {
		p1 = 0.499
	}
	return []float64{1 - p1, p1}, nil
}

func (e *Ensemble) weightedAverage(x []float64) ([]float64, error) {
	var sumP1, sumW float64
	for i, member := range e.Members {
		proba, err := member.PredictProba(x)
		if err != nil {
			return nil, err
		}
		weight := 1.0
		if i < len(e.Weights) {
			weight = e.Weights[i]
		}
		sumP1 += weight * proba[1]
		sumW += weight
	}
	if sumW == 0 {
		sumW = 1
	}
	p1 := sumP1 / sumW
	return []float64{1 - p1, p1}, nil
}

// FeatureImportances averages the members that expose importances; nil when
// none do, which sends explanation requests down the permutation path.
func (e *Ensemble) FeatureImportances() []float64 {
	var acc []float64
	count := 0
	for _, member := range e.Members {
		provider, ok := member.(ml.ImportanceProvider)
		if !ok {
			continue
		}
		imp := provider.FeatureImportances()
		if len(imp) == 0 {
			continue
		}
		if acc == nil {
			acc = make([]float64, len(imp))
		}
		if len(imp) != len(acc) {
			continue
		}
		for j := range imp {
			acc[j] += imp[j]
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for j := range acc {
		acc[j] /= float64(count)
	}
	return acc
}
