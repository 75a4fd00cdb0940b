package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"maternalcare.com/mrp/types"
)

func baseRecord() types.PatientRecord {
	return types.PatientRecord{
		types.KeyAge:              32.0,
		types.KeyGestationalWeeks: 28.0,
		types.KeySystolic:         120.0,
		types.KeyDiastolic:        80.0,
		types.KeyBloodSugar:       5.0,
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid record passes for every risk type", func(t *testing.T) {
		record := baseRecord()
		for _, riskType := range types.AllRiskTypes {
			ok, errs := Validate(record, riskType)
			require.True(t, ok, "risk type %s: %+v", riskType, errs)
		}
	})

	t.Run("Empty record reports every missing required field", func(t *testing.T) {
		ok, errs := Validate(types.PatientRecord{}, types.Preeclampsia)
		require.False(t, ok)
		require.Len(t, errs, 4)
		for _, e := range errs {
			require.Equal(t, MissingRequired, e.Kind)
		}
	})

	t.Run("Per-risk required fields differ", func(t *testing.T) {
		record := types.PatientRecord{
			types.KeyAge:              30.0,
			types.KeyGestationalWeeks: 20.0,
		}
		ok, _ := Validate(record, types.PretermBirth)
		require.True(t, ok)
		ok, _ = Validate(record, types.GestationalDiabetes)
		require.False(t, ok, "blood_sugar required for gestational diabetes")
	})

	t.Run("Out of range value is critical", func(t *testing.T) {
		record := baseRecord()
		record[types.KeyAge] = 75.0
		ok, errs := Validate(record, types.Preeclampsia)
		require.False(t, ok)
		found := false
		for _, e := range errs {
			if e.Kind == OutOfRange && e.Field == types.KeyAge {
				found = true
			}
		}
		require.True(t, found)
	})

	t.Run("Non-numeric value is wrong_type", func(t *testing.T) {
		record := baseRecord()
		record[types.KeySystolic] = "high"
		ok, errs := Validate(record, types.PretermBirth)
		require.False(t, ok)
		found := false
		for _, e := range errs {
			if e.Kind == WrongType && e.Field == types.KeySystolic {
				found = true
			}
		}
		require.True(t, found)
	})

	t.Run("Diastolic at or above systolic is rejected", func(t *testing.T) {
		record := baseRecord()
		record[types.KeySystolic] = 110.0
		record[types.KeyDiastolic] = 115.0
		ok, errs := Validate(record, types.Preeclampsia)
		require.False(t, ok)
		found := false
		for _, e := range errs {
			if e.Kind == CrossFieldViolation {
				found = true
			}
		}
		require.True(t, found)
	})

	t.Run("Early hypertension is a warning, not a failure", func(t *testing.T) {
		record := baseRecord()
		record[types.KeyGestationalWeeks] = 16.0
		record[types.KeySystolic] = 150.0
		record[types.KeyDiastolic] = 95.0
		ok, errs := Validate(record, types.Preeclampsia)
		require.True(t, ok)
		warned := false
		for _, e := range errs {
			if e.Kind == ClinicalWarning {
				require.False(t, e.Critical())
				warned = true
			}
		}
		require.True(t, warned)
	})

	t.Run("Unknown pregnancy type is rejected", func(t *testing.T) {
		record := baseRecord()
		record[types.KeyPregnancyType] = "quadruplet"
		ok, _ := Validate(record, types.Preeclampsia)
		require.False(t, ok)
	})
}
