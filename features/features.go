// Package features turns a validated patient record into the named derived
// quantities both prediction paths consume, and projects them into the
// fixed-length vector a trained artifact expects.
package features

import (
	"math"

	"maternalcare.com/mrp/types"
)

// Derived feature names that are not raw record fields.
const (
	FeatBMI           = "bmi"
	FeatBMICategory   = "bmi_category"
	FeatPulsePress    = "pulse_pressure"
	FeatMAP           = "mean_arterial_pressure"
	FeatBPCategory    = "bp_category"
	FeatTrimester     = "trimester"
	FeatAgeRisk       = "age_risk"
	FeatPregTypeEnc   = "pregnancy_type_encoded"
	FeatRiskCount     = "risk_count"
	FeatHighRiskCombo = "high_risk_combination"
	FeatLMPMonth      = "lmp_month"
)

// BMI category codes.
const (
	BMIUnderweight = 0
	BMINormal      = 1
	BMIOverweight  = 2
	BMIObese       = 3
)

// Blood pressure category codes.
const (
	BPNormal   = 0
	BPElevated = 1
	BPStage1   = 2
	BPStage2   = 3
)

var rawNumericFeatures = []string{
	types.KeyAge,
	types.KeyHeightCm,
	types.KeyWeightKg,
	types.KeyParity,
	types.KeyGravidity,
	types.KeyGestationalWeeks,
	types.KeySystolic,
	types.KeyDiastolic,
	types.KeyHeartRate,
	types.KeyTemperatureC,
	types.KeyBloodSugar,
	types.KeyHemoglobin,
	types.KeyFastingGlucose,
	types.KeyOGTT1h,
	types.KeyOGTT2h,
	types.KeyCervicalLength,
	types.KeyFetalFibronectin,
}

var seasonFeatures = []string{"season_spring", "season_summer", "season_autumn", "season_winter"}

// Derive computes every named feature for the record. Missing numeric
// inputs map to 0; absent categoricals leave their one-hot flags at 0.
// The function is pure: no state, no IO, same record in, same map out.
func Derive(record types.PatientRecord) map[string]float64 {
	out := make(map[string]float64, 64)

	for _, key := range rawNumericFeatures {
		value, _ := record.Float(key)
		out[key] = value
	}

	if bmi, ok := record.BMI(); ok {
		out[FeatBMI] = bmi
		out[FeatBMICategory] = bmiCategory(bmi)
	}

	systolic, sOK := record.Float(types.KeySystolic)
	diastolic, dOK := record.Float(types.KeyDiastolic)
	if sOK && dOK {
		pulse := systolic - diastolic
		out[FeatPulsePress] = pulse
		out[FeatMAP] = diastolic + pulse/3
		out[FeatBPCategory] = bpCategory(systolic, diastolic)
	}

	if weeks, ok := record.Float(types.KeyGestationalWeeks); ok {
		out[FeatTrimester] = trimester(weeks)
	}

	if age, ok := record.Float(types.KeyAge); ok {
		if age < 18 || age > 35 {
			out[FeatAgeRisk] = 1
		} else {
			out[FeatAgeRisk] = 0
		}
	}

	if pregType, ok := record.Str(types.KeyPregnancyType); ok {
		switch pregType {
		case types.PregnancyTwin:
			out[FeatPregTypeEnc] = 1
		case types.PregnancyMultiple:
			out[FeatPregTypeEnc] = 2
		default:
			out[FeatPregTypeEnc] = 0
		}
	}

	text, _ := record.Str(types.KeyRiskFactors)
	matched := MatchFactors(text)
	for _, term := range matched {
		out["risk_"+term] = 1
	}
	out[FeatRiskCount] = float64(len(matched))
	if len(matched) >= 2 {
		out[FeatHighRiskCombo] = 1
	}

	if lmp, ok := record.Date(types.KeyLastMenstrual); ok {
		month := int(lmp.Month())
		out[FeatLMPMonth] = float64(month)
		out[seasonFeatures[seasonIndex(month)]] = 1
	}

	return out
}

// DeriveForTraining computes the same features as Derive but marks
// measurements with absent inputs as NaN instead of 0, so the trainer's
// imputers can fill them. Flags and counters stay at 0 when absent.
func DeriveForTraining(record types.PatientRecord) map[string]float64 {
	out := Derive(record)
	for _, key := range rawNumericFeatures {
		if !record.Has(key) {
			out[key] = math.NaN()
		}
	}
	for _, name := range derivedMeasurements {
		if _, ok := out[name]; !ok {
			out[name] = math.NaN()
		}
	}
	return out
}

var derivedMeasurements = []string{
	FeatBMI, FeatBMICategory,
	FeatPulsePress, FeatMAP, FeatBPCategory,
	FeatTrimester, FeatAgeRisk, FeatLMPMonth,
}

// Engineer projects the record's derived features into the order the
// artifact was trained with. Names absent from the derived map become 0;
// derived values not named in the order are dropped.
func Engineer(record types.PatientRecord, order []string) []float64 {
	derived := Derive(record)
	vector := make([]float64, len(order))
	for i, name := range order {
		vector[i] = derived[name]
	}
	return vector
}

func bmiCategory(bmi float64) float64 {
	switch {
	case bmi < 18.5:
		return BMIUnderweight
	case bmi < 24:
		return BMINormal
	case bmi < 28:
		return BMIOverweight
	default:
		return BMIObese
	}
}

func bpCategory(systolic, diastolic float64) float64 {
	switch {
	case systolic >= 140 || diastolic >= 90:
		return BPStage2
	case systolic >= 130 || diastolic >= 80:
		return BPStage1
	case systolic >= 120:
		return BPElevated
	default:
		return BPNormal
	}
}

func trimester(weeks float64) float64 {
	switch {
	case weeks <= 12:
		return 1
	case weeks <= 26:
		return 2
	default:
		return 3
	}
}

func seasonIndex(month int) int {
	switch month {
	case 3, 4, 5:
		return 0 // spring
	case 6, 7, 8:
		return 1 // summer
	case 9, 10, 11:
		return 2 // autumn
	default:
		return 3 // winter
	}
}

// DefaultOrder is the feature ordering the trainer freezes into new
// artifacts for each risk type. Serving never infers an order; it reads
// this list back from the artifact metadata.
func DefaultOrder(riskType types.RiskType) []string {
	common := []string{
		types.KeyAge,
		types.KeyGestationalWeeks,
		FeatTrimester,
		FeatAgeRisk,
		types.KeyParity,
		types.KeyGravidity,
		FeatPregTypeEnc,
		FeatBMI,
		FeatBMICategory,
	}
	var specific []string
	switch riskType {
	case types.Preeclampsia:
		specific = []string{
			types.KeySystolic,
			types.KeyDiastolic,
			FeatPulsePress,
			FeatMAP,
			FeatBPCategory,
			types.KeyHemoglobin,
			"risk_hypertension",
			"risk_prior_preeclampsia",
			"risk_multiples",
			"risk_obesity",
			"risk_family_history",
			"risk_renal",
			"risk_autoimmune",
		}
	case types.GestationalDiabetes:
		specific = []string{
			types.KeyBloodSugar,
			types.KeyFastingGlucose,
			types.KeyOGTT1h,
			types.KeyOGTT2h,
			"risk_diabetes",
			"risk_prior_gdm",
			"risk_obesity",
			"risk_family_history",
			"risk_polyhydramnios",
		}
	case types.PretermBirth:
		specific = []string{
			types.KeyCervicalLength,
			types.KeyFetalFibronectin,
			types.KeySystolic,
			"risk_multiples",
			"risk_prior_preterm",
			"risk_prior_stillbirth",
			"risk_smoking",
			"risk_placenta_previa",
			"risk_placental_abruption",
			"risk_iugr",
		}
	}
	order := append(append([]string{}, common...), specific...)
	order = append(order, FeatRiskCount, FeatHighRiskCombo)
	order = append(order, seasonFeatures...)
	return order
}
