package types

import (
	"strconv"
	"strings"
	"time"
)

// PatientRecord is the caller-supplied input mapping. Keys are the canonical
// names from the schema below; Normalize folds known aliases into them.
type PatientRecord map[string]interface{}

// Canonical field keys.
const (
	KeyAge              = "age"
	KeyHeightCm         = "height_cm"
	KeyWeightKg         = "weight_kg"
	KeyGestationalWeeks = "gestational_weeks"
	KeyParity           = "parity"
	KeyGravidity        = "gravidity"
	KeyPregnancyType    = "pregnancy_type"
	KeySystolic         = "systolic_pressure"
	KeyDiastolic        = "diastolic_pressure"
	KeyHeartRate        = "heart_rate"
	KeyTemperatureC     = "temperature_c"
	KeyBloodSugar       = "blood_sugar"
	KeyHemoglobin       = "hemoglobin"
	KeyFastingGlucose   = "fasting_glucose"
	KeyOGTT1h           = "ogtt_1h"
	KeyOGTT2h           = "ogtt_2h"
	KeyCervicalLength   = "cervical_length_mm"
	KeyFetalFibronectin = "fetal_fibronectin"
	KeyRiskFactors      = "risk_factors"
	KeyLastMenstrual    = "last_menstrual_date"
)

// Pregnancy type enum values.
const (
	PregnancySingleton = "singleton"
	PregnancyTwin      = "twin"
	PregnancyMultiple  = "multiple"
)

// fieldAliases maps the key spellings seen in upstream callers onto the
// canonical schema. Alias handling lives here and only here; the validator,
// feature engineer and rule engine all assume canonical keys.
var fieldAliases = map[string]string{
	"height":                   KeyHeightCm,
	"weight":                   KeyWeightKg,
	"pregnancy_weeks":          KeyGestationalWeeks,
	"pregnancy_count":          KeyGravidity,
	"blood_pressure":           KeySystolic,
	"blood_pressure_systolic":  KeySystolic,
	"blood_pressure_diastolic": KeyDiastolic,
	"temperature":              KeyTemperatureC,
	"cervical_length":          KeyCervicalLength,
	"bmi":                      "bmi",
}

// flagAliases are standalone 0/1 keys some callers send instead of listing
// the factor in risk_factors. Truthy values are folded into the
// risk_factors text under the vocabulary name.
var flagAliases = map[string]string{
	"previous_preeclampsia":       "prior_preeclampsia",
	"prior_preeclampsia":          "prior_preeclampsia",
	"previous_gdm":                "prior_gdm",
	"prior_gdm":                   "prior_gdm",
	"previous_preterm":            "prior_preterm",
	"prior_preterm":               "prior_preterm",
	"prior_stillbirth":            "prior_stillbirth",
	"smoking":                     "smoking",
	"family_history":              "family_history",
	"family_history_hypertension": "family_history",
	"family_history_diabetes":     "family_history",
	"multiple_pregnancy":          "multiples",
	"polyhydramnios":              "polyhydramnios",
}

// Normalize returns a copy of the record with alias keys rewritten to the
// canonical schema and truthy factor flags merged into risk_factors. The
// input map is never mutated.
func (r PatientRecord) Normalize() PatientRecord {
	out := make(PatientRecord, len(r))
	var extraFactors []string
	for key, value := range r {
		if canonical, ok := fieldAliases[key]; ok {
			// An alias yields only when the canonical key is present too;
			// a key that is its own canonical form always copies through.
			if _, exists := r[canonical]; canonical == key || !exists {
				out[canonical] = value
			}
			continue
		}
		if factor, ok := flagAliases[key]; ok {
			if truthy(value) {
				extraFactors = append(extraFactors, factor)
			}
			continue
		}
		out[key] = value
	}
	if len(extraFactors) > 0 {
		existing, _ := out.Str(KeyRiskFactors)
		parts := append([]string{}, extraFactors...)
		if existing != "" {
			parts = append([]string{existing}, parts...)
		}
		out[KeyRiskFactors] = strings.Join(parts, ",")
	}
	return out
}

// Float reads a numeric field. Accepts the numeric shapes JSON decoding and
// plain Go callers produce.
func (r PatientRecord) Float(key string) (float64, bool) {
	value, ok := r[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func (r PatientRecord) Str(key string) (string, bool) {
	value, ok := r[key]
	if !ok || value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

func (r PatientRecord) Has(key string) bool {
	value, ok := r[key]
	return ok && value != nil
}

// Date parses a calendar-date field. Time-of-day suffixes are tolerated.
func (r PatientRecord) Date(key string) (time.Time, bool) {
	s, ok := r.Str(key)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BMI derives weight/(height m)^2 when both inputs are present.
func (r PatientRecord) BMI() (float64, bool) {
	if v, ok := r.Float("bmi"); ok && v > 0 {
		return v, true
	}
	height, hOK := r.Float(KeyHeightCm)
	weight, wOK := r.Float(KeyWeightKg)
	if !hOK || !wOK || height <= 0 {
		return 0, false
	}
	meters := height / 100
	return weight / (meters * meters), true
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		s := strings.TrimSpace(strings.ToLower(v))
		return s == "1" || s == "true" || s == "yes"
	}
	return false
}
