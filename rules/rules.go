// Package rules scores risk deterministically by cumulative weighted
// factors. It is the fallback for every learned-model failure and the
// ground truth when no artifact is loaded.
package rules

import (
	"maternalcare.com/mrp/features"
	"maternalcare.com/mrp/types"
	"maternalcare.com/mrp/utils"
)

// Probabilities are clamped here to keep the probabilistic interpretation.
const (
	MinProbability = 0.05
	MaxProbability = 0.95
)

// Factor names reported for fired rules.
const (
	FactorElevatedBP        = "elevated_blood_pressure"
	FactorAdvancedAge       = "advanced_age"
	FactorPriorPreeclampsia = "prior_preeclampsia"
	FactorElevatedBMI       = "elevated_bmi"
	FactorMultiples         = "multiples"
	FactorGlucoseAbnormal   = "abnormal_glucose"
	FactorPriorGDM          = "prior_gdm"
	FactorShortCervix       = "short_cervix"
	FactorPriorPreterm      = "prior_preterm"
)

// Score runs the rule table for one risk type. The returned factor list is
// exactly the rules that fired, with their added weight as importance.
func Score(record types.PatientRecord, riskType types.RiskType) (float64, []types.RiskFactor) {
	derived := features.Derive(record)
	switch riskType {
	case types.Preeclampsia:
		return preeclampsia(record, derived)
	case types.GestationalDiabetes:
		return gestationalDiabetes(record, derived)
	case types.PretermBirth:
		return pretermBirth(record, derived)
	}
	return MinProbability, nil
}

type accumulator struct {
	score   float64
	factors []types.RiskFactor
}

func (a *accumulator) add(fired bool, name string, weight float64) {
	if !fired {
		return
	}
	a.score += weight
	a.factors = append(a.factors, types.RiskFactor{Name: name, Importance: weight})
}

func (a *accumulator) result() (float64, []types.RiskFactor) {
	return utils.Clamp(a.score, MinProbability, MaxProbability), a.factors
}

func preeclampsia(record types.PatientRecord, derived map[string]float64) (float64, []types.RiskFactor) {
	acc := accumulator{score: 0.20}

	systolic, _ := record.Float(types.KeySystolic)
	age, _ := record.Float(types.KeyAge)
	bmi, hasBMI := record.BMI()

	acc.add(systolic > 140, FactorElevatedBP, 0.30)
	acc.add(age > 40, FactorAdvancedAge, 0.20)
	acc.add(derived["risk_prior_preeclampsia"] == 1, FactorPriorPreeclampsia, 0.20)
	acc.add(hasBMI && bmi > 30, FactorElevatedBMI, 0.15)
	acc.add(isMultiples(derived), FactorMultiples, 0.10)

	return acc.result()
}

func gestationalDiabetes(record types.PatientRecord, derived map[string]float64) (float64, []types.RiskFactor) {
	acc := accumulator{score: 0.15}

	fasting, _ := record.Float(types.KeyFastingGlucose)
	ogtt1h, _ := record.Float(types.KeyOGTT1h)
	ogtt2h, _ := record.Float(types.KeyOGTT2h)
	age, _ := record.Float(types.KeyAge)
	bmi, hasBMI := record.BMI()

	// IADPSG diagnostic cut points.
	glucoseAbnormal := fasting >= 5.1 || ogtt1h >= 10.0 || ogtt2h >= 8.5
	acc.add(glucoseAbnormal, FactorGlucoseAbnormal, 0.35)
	acc.add(hasBMI && bmi > 28, FactorElevatedBMI, 0.30)
	acc.add(age > 35, FactorAdvancedAge, 0.20)
	acc.add(derived["risk_prior_gdm"] == 1, FactorPriorGDM, 0.20)

	return acc.result()
}

func pretermBirth(record types.PatientRecord, derived map[string]float64) (float64, []types.RiskFactor) {
	acc := accumulator{score: 0.10}

	cervical, hasCervical := record.Float(types.KeyCervicalLength)
	systolic, _ := record.Float(types.KeySystolic)

	acc.add(hasCervical && cervical < 25, FactorShortCervix, 0.30)
	acc.add(derived["risk_prior_preterm"] == 1, FactorPriorPreterm, 0.30)
	acc.add(isMultiples(derived), FactorMultiples, 0.20)
	acc.add(systolic > 140, FactorElevatedBP, 0.20)

	return acc.result()
}

func isMultiples(derived map[string]float64) bool {
	return derived[features.FeatPregTypeEnc] >= 1 || derived["risk_multiples"] == 1
}
