package types

import "errors"

type RiskType string

const (
	Preeclampsia        RiskType = "preeclampsia"
	GestationalDiabetes RiskType = "gestational_diabetes"
	PretermBirth        RiskType = "preterm_birth"
)

// AllRiskTypes is the fixed prediction order used by the aggregator.
var AllRiskTypes = []RiskType{Preeclampsia, GestationalDiabetes, PretermBirth}

func (rt RiskType) Valid() bool {
	switch rt {
	case Preeclampsia, GestationalDiabetes, PretermBirth:
		return true
	}
	return false
}

type RiskLevel string

const (
	LevelLow    RiskLevel = "low"
	LevelMedium RiskLevel = "medium"
	LevelHigh   RiskLevel = "high"
)

// Thresholds holds the two probability cut points for one risk type.
// A probability below Low is low risk, below High medium, else high.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

var DefaultThresholds = Thresholds{Low: 0.4, High: 0.7}

func (t Thresholds) Level(probability float64) RiskLevel {
	switch {
	case probability >= t.High:
		return LevelHigh
	case probability >= t.Low:
		return LevelMedium
	default:
		return LevelLow
	}
}

// RuleBasedModelType marks results produced by the rule engine fallback.
const RuleBasedModelType = "rule_based"

type RiskFactor struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

type RiskResult struct {
	RiskType        RiskType     `json:"risk_type"`
	RiskLevel       RiskLevel    `json:"risk_level"`
	RiskProbability float64      `json:"risk_probability"`
	Confidence      float64      `json:"confidence"`
	TopRiskFactors  []RiskFactor `json:"top_risk_factors"`
	Recommendations []string     `json:"recommendations"`
	ModelType       string       `json:"model_type"`
}

type ComprehensiveResult struct {
	OverallRiskLevel RiskLevel               `json:"overall_risk_level"`
	OverallRiskScore float64                 `json:"overall_risk_score"`
	IndividualRisks  map[RiskType]RiskResult `json:"individual_risks"`
	TopRiskFactors   []RiskFactor            `json:"top_risk_factors"`
	Recommendations  []string                `json:"recommendations"`
}

var (
	// ErrInvalidInput is the only error a prediction surfaces for a bad record.
	ErrInvalidInput = errors.New("invalid_input")
	// ErrModelUnavailable should not occur while the rule engine exists; kept
	// so callers can map it to a 5xx if it ever does.
	ErrModelUnavailable = errors.New("model_unavailable")
)
