package risk

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"maternalcare.com/mrp/logger"
	"maternalcare.com/mrp/ml"
	"maternalcare.com/mrp/registry"
	"maternalcare.com/mrp/types"
)

const maxTopFactors = 5

// explainer turns a learned prediction into named risk factors. Models that
// expose importances are used directly; black-box models get a probe
// sensitivity approximation computed once and cached per artifact version.
type explainer struct {
	log   zerolog.Logger
	mu    sync.Mutex
	cache map[string][]float64
}

func newExplainer() *explainer {
	return &explainer{
		log:   logger.NewLogger("RiskExplainer"),
		cache: make(map[string][]float64),
	}
}

// topFactors reports the most important features that are actually present
// (non-zero) in the engineered vector, ordered by importance.
func (e *explainer) topFactors(artifact *registry.Artifact, vector []float64) []types.RiskFactor {
	importances := e.importances(artifact, len(vector))
	if len(importances) != len(vector) {
		return nil
	}
	var factors []types.RiskFactor
	for i, name := range artifact.Meta.Features {
		if vector[i] == 0 || importances[i] <= 0 {
			continue
		}
		factors = append(factors, types.RiskFactor{Name: name, Importance: importances[i]})
	}
	sort.SliceStable(factors, func(a, b int) bool {
		return factors[a].Importance > factors[b].Importance
	})
	if len(factors) > maxTopFactors {
		factors = factors[:maxTopFactors]
	}
	return factors
}

func (e *explainer) importances(artifact *registry.Artifact, dims int) []float64 {
	if provider, ok := artifact.Predictor.(ml.ImportanceProvider); ok {
		if imp := provider.FeatureImportances(); len(imp) == dims {
			return imp
		}
	}

	key := string(artifact.Meta.RiskType) + ":" + artifact.Meta.Version
	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.cache[key]; ok {
		return cached
	}
	imp := e.probeSensitivity(artifact, dims)
	e.cache[key] = imp
	return imp
}

// probeSensitivity measures how much each feature moves the model output when
// toggled from a zero baseline. Deterministic, so cacheable per version.
func (e *explainer) probeSensitivity(artifact *registry.Artifact, dims int) []float64 {
	baseline := make([]float64, dims)
	base, err := e.score(artifact, baseline)
	if err != nil {
		e.log.Warn().Err(err).Str("risk_type", string(artifact.Meta.RiskType)).Msg("Sensitivity probe failed")
		return nil
	}
	imp := make([]float64, dims)
	var total float64
	for i := 0; i < dims; i++ {
		probe := make([]float64, dims)
		copy(probe, baseline)
		probe[i] = 1
		score, err := e.score(artifact, probe)
		if err != nil {
			return nil
		}
		imp[i] = math.Abs(score - base)
		total += imp[i]
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}

func (e *explainer) score(artifact *registry.Artifact, x []float64) (float64, error) {
	if artifact.Preprocessor != nil {
		scaled, err := artifact.Preprocessor.Transform(x)
		if err != nil {
			return 0, err
		}
		x = scaled
	}
	proba, err := artifact.Predictor.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if len(proba) != 2 {
		return 0, fmt.Errorf("predict_proba returned %d classes", len(proba))
	}
	return proba[1], nil
}
