package features

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"maternalcare.com/mrp/types"
)

func sampleRecord() types.PatientRecord {
	return types.PatientRecord{
		types.KeyAge:              38.0,
		types.KeyHeightCm:         160.0,
		types.KeyWeightKg:         80.0,
		types.KeyGestationalWeeks: 30.0,
		types.KeySystolic:         145.0,
		types.KeyDiastolic:        95.0,
		types.KeyPregnancyType:    types.PregnancyTwin,
		types.KeyRiskFactors:      "smoking, prior preeclampsia",
		types.KeyLastMenstrual:    "2026-02-10",
	}
}

func TestDerive(t *testing.T) {
	derived := Derive(sampleRecord())

	t.Run("BMI and category", func(t *testing.T) {
		require.InDelta(t, 31.25, derived[FeatBMI], 1e-9)
		require.Equal(t, float64(BMIObese), derived[FeatBMICategory])
	})

	t.Run("Blood pressure derivations", func(t *testing.T) {
		require.Equal(t, 50.0, derived[FeatPulsePress])
		require.InDelta(t, 95.0+50.0/3, derived[FeatMAP], 1e-9)
		require.Equal(t, float64(BPStage2), derived[FeatBPCategory])
	})

	t.Run("Trimester and age risk", func(t *testing.T) {
		require.Equal(t, 3.0, derived[FeatTrimester])
		require.Equal(t, 1.0, derived[FeatAgeRisk])
	})

	t.Run("Risk factor text matching", func(t *testing.T) {
		require.Equal(t, 1.0, derived["risk_smoking"])
		require.Equal(t, 1.0, derived["risk_prior_preeclampsia"])
		require.Equal(t, 2.0, derived[FeatRiskCount])
		require.Equal(t, 1.0, derived[FeatHighRiskCombo])
	})

	t.Run("Season one-hot from LMP month", func(t *testing.T) {
		require.Equal(t, 2.0, derived[FeatLMPMonth])
		require.Equal(t, 1.0, derived["season_winter"])
		_, spring := derived["season_spring"]
		require.False(t, spring)
	})

	t.Run("Pure function", func(t *testing.T) {
		record := sampleRecord()
		first := Derive(record)
		second := Derive(record)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Derive is not deterministic:\n%s", diff)
		}
	})
}

func TestDeriveMissingInputs(t *testing.T) {
	derived := Derive(types.PatientRecord{types.KeyAge: 25.0})

	require.Equal(t, 0.0, derived[types.KeySystolic])
	_, hasBMI := derived[FeatBMI]
	require.False(t, hasBMI)
	_, hasMAP := derived[FeatMAP]
	require.False(t, hasMAP)
	require.Equal(t, 0.0, derived[FeatRiskCount])
	for _, season := range seasonFeatures {
		_, ok := derived[season]
		require.False(t, ok, season)
	}
}

func TestDeriveForTraining(t *testing.T) {
	derived := DeriveForTraining(types.PatientRecord{types.KeyAge: 25.0})

	require.True(t, math.IsNaN(derived[types.KeySystolic]))
	require.True(t, math.IsNaN(derived[FeatBMI]))
	require.False(t, math.IsNaN(derived[types.KeyAge]))
	require.Equal(t, 0.0, derived[FeatRiskCount])
}

func TestEngineer(t *testing.T) {
	order := []string{types.KeyAge, FeatBMI, "risk_smoking", "no_such_feature"}
	vector := Engineer(sampleRecord(), order)

	require.Equal(t, []float64{38.0, 31.25, 1.0, 0.0}, vector)
}

func TestDefaultOrder(t *testing.T) {
	for _, riskType := range types.AllRiskTypes {
		order := DefaultOrder(riskType)
		seen := make(map[string]bool, len(order))
		for _, name := range order {
			require.False(t, seen[name], "duplicate feature %q for %s", name, riskType)
			seen[name] = true
		}
		require.True(t, seen[types.KeyAge])
		require.True(t, seen[FeatRiskCount])
		require.True(t, seen["season_winter"])
	}

	preOrder := DefaultOrder(types.Preeclampsia)
	found := false
	for _, name := range preOrder {
		if name == FeatMAP {
			found = true
		}
	}
	require.True(t, found, "preeclampsia order must carry blood pressure features")
}

func TestMatchFactors(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"", nil},
		{"smoking", []string{"smoking"}},
		{"prior preeclampsia, chronic hypertension", []string{"hypertension", "prior_preeclampsia"}},
		{"PRIOR_GDM", []string{"prior_gdm"}},
	}
	for _, c := range cases {
		got := MatchFactors(c.text)
		require.ElementsMatch(t, c.want, got, "text %q", c.text)
	}
}
