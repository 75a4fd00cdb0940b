// Package ml defines the two capabilities the serving path assumes of a
// trained artifact and the codec that round-trips model parameters through
// JSON files. Algorithm identity lives in the serialized envelope and the
// artifact metadata, never in the hot path.
package ml

import (
	"encoding/json"
	"fmt"
)

// Predictor is anything with a binary predict_proba.
type Predictor interface {
	Type() string
	// PredictProba returns the class probabilities [p0, p1] for one
	// engineered feature vector.
	PredictProba(x []float64) ([]float64, error)
}

// Transformer is anything that can rescale a feature vector.
type Transformer interface {
	Type() string
	Transform(x []float64) ([]float64, error)
}

// ImportanceProvider is the optional capability backing explanations.
// Importances are aligned with the artifact's feature order and sum to 1.
type ImportanceProvider interface {
	FeatureImportances() []float64
}

type envelope struct {
	ModelType string          `json:"model_type"`
	Params    json.RawMessage `json:"params"`
}

type PredictorDecoder func(params json.RawMessage) (Predictor, error)
type TransformerDecoder func(params json.RawMessage) (Transformer, error)

var (
	predictorDecoders   = map[string]PredictorDecoder{}
	transformerDecoders = map[string]TransformerDecoder{}
)

// RegisterPredictor is called from model package init functions.
func RegisterPredictor(modelType string, decoder PredictorDecoder) {
	predictorDecoders[modelType] = decoder
}

func RegisterTransformer(modelType string, decoder TransformerDecoder) {
	transformerDecoders[modelType] = decoder
}

func EncodePredictor(p Predictor) ([]byte, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ModelType: p.Type(), Params: params})
}

func DecodePredictor(data []byte) (Predictor, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	decoder, ok := predictorDecoders[env.ModelType]
	if !ok {
		return nil, fmt.Errorf("no predictor decoder registered for model type %q", env.ModelType)
	}
	return decoder(env.Params)
}

func EncodeTransformer(t Transformer) ([]byte, error) {
	params, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ModelType: t.Type(), Params: params})
}

func DecodeTransformer(data []byte) (Transformer, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	decoder, ok := transformerDecoders[env.ModelType]
	if !ok {
		return nil, fmt.Errorf("no transformer decoder registered for model type %q", env.ModelType)
	}
	return decoder(env.Params)
}

// DimensionError reports a feature-count mismatch between the engineered
// vector and the trained parameters. The predictor treats it like any other
// model failure and falls back to rules.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("feature vector has %d values, model expects %d", e.Got, e.Want)
}

func CheckDimension(want, got int) error {
	if want != got {
		return &DimensionError{Want: want, Got: got}
	}
	return nil
}
