// Package validate checks one patient record against the per-risk field
// schema before any feature engineering happens.
package validate

import (
	"fmt"

	"maternalcare.com/mrp/types"
)

type ErrorKind string

const (
	MissingRequired     ErrorKind = "missing_required"
	WrongType           ErrorKind = "wrong_type"
	OutOfRange          ErrorKind = "out_of_range"
	CrossFieldViolation ErrorKind = "cross_field_violation"
	ClinicalWarning     ErrorKind = "clinical_warning"
)

type Error struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
}

func (e Error) Critical() bool {
	return e.Kind != ClinicalWarning
}

type numericRange struct {
	min, max float64
}

var numericRanges = map[string]numericRange{
	types.KeyAge:              {12, 60},
	types.KeyHeightCm:         {140, 200},
	types.KeyWeightKg:         {30, 200},
	types.KeyGestationalWeeks: {0, 43},
	types.KeySystolic:         {60, 250},
	types.KeyDiastolic:        {40, 150},
	types.KeyHeartRate:        {50, 180},
	types.KeyTemperatureC:     {35, 42},
	types.KeyBloodSugar:       {2, 20},
	types.KeyHemoglobin:       {50, 200},
	types.KeyFastingGlucose:   {2, 20},
	types.KeyOGTT1h:           {2, 20},
	types.KeyOGTT2h:           {2, 20},
	types.KeyCervicalLength:   {5, 60},
	types.KeyFetalFibronectin: {0, 500},
	types.KeyParity:           {0, 20},
	types.KeyGravidity:        {0, 20},
}

var requiredFields = map[types.RiskType][]string{
	types.Preeclampsia:        {types.KeyAge, types.KeyGestationalWeeks, types.KeySystolic, types.KeyDiastolic},
	types.GestationalDiabetes: {types.KeyAge, types.KeyGestationalWeeks, types.KeyBloodSugar},
	types.PretermBirth:        {types.KeyAge, types.KeyGestationalWeeks},
}

// Validate checks the record for one risk type. The record is expected to be
// normalized already. The boolean is true when no critical errors were found;
// clinical warnings are returned but never fail the record.
func Validate(record types.PatientRecord, riskType types.RiskType) (bool, []Error) {
	var errs []Error

	for _, field := range requiredFields[riskType] {
		if !record.Has(field) {
			errs = append(errs, Error{
				Kind:    MissingRequired,
				Field:   field,
				Message: fmt.Sprintf("%s is required for %s", field, riskType),
			})
		}
	}

	for field, bounds := range numericRanges {
		if !record.Has(field) {
			continue
		}
		value, ok := record.Float(field)
		if !ok {
			errs = append(errs, Error{
				Kind:    WrongType,
				Field:   field,
				Message: fmt.Sprintf("%s must be numeric", field),
			})
			continue
		}
		if value < bounds.min || value > bounds.max {
			errs = append(errs, Error{
				Kind:    OutOfRange,
				Field:   field,
				Message: fmt.Sprintf("%s=%v outside [%v, %v]", field, value, bounds.min, bounds.max),
			})
		}
	}

	if record.Has(types.KeyPregnancyType) {
		value, ok := record.Str(types.KeyPregnancyType)
		if !ok {
			errs = append(errs, Error{Kind: WrongType, Field: types.KeyPregnancyType, Message: "pregnancy_type must be a string"})
		} else {
			switch value {
			case types.PregnancySingleton, types.PregnancyTwin, types.PregnancyMultiple:
			default:
				errs = append(errs, Error{
					Kind:    OutOfRange,
					Field:   types.KeyPregnancyType,
					Message: fmt.Sprintf("pregnancy_type %q is not one of singleton/twin/multiple", value),
				})
			}
		}
	}

	if record.Has(types.KeyLastMenstrual) {
		if _, ok := record.Date(types.KeyLastMenstrual); !ok {
			errs = append(errs, Error{Kind: WrongType, Field: types.KeyLastMenstrual, Message: "last_menstrual_date is not a parseable date"})
		}
	}

	errs = append(errs, crossFieldChecks(record)...)

	critical := false
	for _, e := range errs {
		if e.Critical() {
			critical = true
			break
		}
	}
	return !critical, errs
}

func crossFieldChecks(record types.PatientRecord) []Error {
	var errs []Error

	systolic, sOK := record.Float(types.KeySystolic)
	diastolic, dOK := record.Float(types.KeyDiastolic)
	if sOK && dOK && diastolic >= systolic {
		errs = append(errs, Error{
			Kind:    CrossFieldViolation,
			Field:   types.KeyDiastolic,
			Message: fmt.Sprintf("diastolic %v must be below systolic %v", diastolic, systolic),
		})
	}

	if bmi, ok := record.BMI(); ok && (bmi < 15 || bmi > 60) {
		errs = append(errs, Error{
			Kind:    CrossFieldViolation,
			Field:   types.KeyWeightKg,
			Message: fmt.Sprintf("derived BMI %.1f outside [15, 60]", bmi),
		})
	}

	// Hypertension before 20 weeks is flagged for review, never rejected.
	weeks, wOK := record.Float(types.KeyGestationalWeeks)
	if wOK && sOK && weeks <= 20 && systolic > 140 {
		errs = append(errs, Error{
			Kind:    ClinicalWarning,
			Field:   types.KeySystolic,
			Message: "systolic > 140 at or before 20 weeks: needs urgent review",
		})
	}

	return errs
}
