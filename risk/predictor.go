// Package risk is the prediction service: it validates a patient record,
// scores it with the active learned artifact when one exists, and falls back
// to the rule engine on any model failure so a caller always gets a result
// for a valid record.
package risk

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"maternalcare.com/mrp/features"
	"maternalcare.com/mrp/logger"
	"maternalcare.com/mrp/registry"
	"maternalcare.com/mrp/rules"
	"maternalcare.com/mrp/types"
	"maternalcare.com/mrp/utils"
	"maternalcare.com/mrp/validate"
)

// InvalidInputError carries the per-field validation failures for a rejected
// record. It unwraps to types.ErrInvalidInput.
type InvalidInputError struct {
	RiskType types.RiskType
	Errors   []validate.Error
}

func (e *InvalidInputError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		if ve.Critical() {
			fields = append(fields, ve.Field)
		}
	}
	return fmt.Sprintf("invalid input for %s: %s", e.RiskType, strings.Join(fields, ", "))
}

func (e *InvalidInputError) Unwrap() error { return types.ErrInvalidInput }

type Predictor struct {
	registry   *registry.Registry
	thresholds *ThresholdStore
	explain    *explainer
	log        zerolog.Logger

	mu         sync.Mutex
	lastUsedML map[types.RiskType]bool
}

func New(reg *registry.Registry) *Predictor {
	return &Predictor{
		registry:   reg,
		thresholds: NewThresholdStore(),
		explain:    newExplainer(),
		log:        logger.NewLogger("RiskPredictor"),
		lastUsedML: make(map[types.RiskType]bool),
	}
}

// Predict scores one record for one risk type. The only error it returns is
// for an invalid record; learned-model failures are logged and absorbed by
// the rule fallback.
func (p *Predictor) Predict(record types.PatientRecord, riskType types.RiskType) (types.RiskResult, error) {
	if !riskType.Valid() {
		return types.RiskResult{}, fmt.Errorf("unknown risk type %q", riskType)
	}
	normalized := record.Normalize()

	ok, validationErrors := validate.Validate(normalized, riskType)
	if !ok {
		return types.RiskResult{}, &InvalidInputError{RiskType: riskType, Errors: validationErrors}
	}
	for _, ve := range validationErrors {
		p.log.Warn().
			Str("risk_type", string(riskType)).
			Str("field", ve.Field).
			Msg(ve.Message)
	}

	thresholds := p.thresholds.Get(riskType)
	probability, factors, modelType, usedML := p.score(normalized, riskType)
	probability = utils.Clamp(probability, rules.MinProbability, rules.MaxProbability)
	level := thresholds.Level(probability)

	p.mu.Lock()
	p.lastUsedML[riskType] = usedML
	p.mu.Unlock()

	return types.RiskResult{
		RiskType:        riskType,
		RiskLevel:       level,
		RiskProbability: utils.Round2(probability),
		Confidence:      utils.Round2(2 * (math.Max(probability, 1-probability) - 0.5)),
		TopRiskFactors:  factors,
		Recommendations: recommendFor(riskType, level, factors),
		ModelType:       modelType,
	}, nil
}

func (p *Predictor) score(record types.PatientRecord, riskType types.RiskType) (float64, []types.RiskFactor, string, bool) {
	if artifact, ok := p.registry.GetActive(riskType); ok {
		probability, factors, err := p.scoreLearned(artifact, record)
		if err == nil {
			return probability, factors, artifact.Meta.ModelType, true
		}
		p.log.Warn().Err(err).
			Str("risk_type", string(riskType)).
			Str("version", artifact.Meta.Version).
			Msg("Learned model failed, using rule fallback")
	}
	probability, factors := rules.Score(record, riskType)
	return probability, factors, types.RuleBasedModelType, false
}

func (p *Predictor) scoreLearned(artifact *registry.Artifact, record types.PatientRecord) (float64, []types.RiskFactor, error) {
	vector := features.Engineer(record, artifact.Meta.Features)

	x := vector
	if artifact.Preprocessor != nil {
		scaled, err := artifact.Preprocessor.Transform(x)
		if err != nil {
			return 0, nil, err
		}
		x = scaled
	}

	proba, err := artifact.Predictor.PredictProba(x)
	if err != nil {
		return 0, nil, err
	}
	if len(proba) != 2 {
		return 0, nil, fmt.Errorf("predict_proba returned %d classes", len(proba))
	}
	p1 := proba[1]
	if math.IsNaN(p1) || p1 < 0 || p1 > 1 {
		return 0, nil, fmt.Errorf("probability %v outside [0, 1]", p1)
	}
	return p1, p.explain.topFactors(artifact, vector), nil
}

// PredictPreeclampsiaRisk is a named convenience wrapper over Predict.
func (p *Predictor) PredictPreeclampsiaRisk(record types.PatientRecord) (types.RiskResult, error) {
	return p.Predict(record, types.Preeclampsia)
}

func (p *Predictor) PredictGestationalDiabetesRisk(record types.PatientRecord) (types.RiskResult, error) {
	return p.Predict(record, types.GestationalDiabetes)
}

func (p *Predictor) PredictPretermBirthRisk(record types.PatientRecord) (types.RiskResult, error) {
	return p.Predict(record, types.PretermBirth)
}

// IsMLAvailable reports whether a learned artifact is active for the risk
// type; with an empty argument it requires one for every risk type.
func (p *Predictor) IsMLAvailable(riskType types.RiskType) bool {
	return p.registry.IsAvailable(riskType)
}

// LastUsedML reports whether the most recent prediction for the risk type
// took the learned path. Observability only.
func (p *Predictor) LastUsedML(riskType types.RiskType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUsedML[riskType]
}

func (p *Predictor) GetRiskThresholds() map[types.RiskType]types.Thresholds {
	return p.thresholds.All()
}

func (p *Predictor) SetRiskThresholds(riskType types.RiskType, t types.Thresholds) error {
	if err := p.thresholds.Set(riskType, t); err != nil {
		return err
	}
	p.log.Info().
		Str("risk_type", string(riskType)).
		Float64("low", t.Low).
		Float64("high", t.High).
		Msg("Risk thresholds updated")
	return nil
}

func (p *Predictor) ActiveVersions() map[types.RiskType]string {
	return p.registry.ActiveVersions()
}

// IsInvalidInput reports whether err came from record validation.
func IsInvalidInput(err error) bool {
	return errors.Is(err, types.ErrInvalidInput)
}
