package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"maternalcare.com/mrp/ml/linear"
	"maternalcare.com/mrp/ml/metrics"
	"maternalcare.com/mrp/registry"
	"maternalcare.com/mrp/types"
)

func newRulePredictor(t *testing.T) *Predictor {
	t.Helper()
	reg := registry.New(t.TempDir())
	require.NoError(t, reg.LoadAll())
	return New(reg)
}

func healthyRecord() types.PatientRecord {
	return types.PatientRecord{
		types.KeyAge:              28.0,
		types.KeyGestationalWeeks: 24.0,
		types.KeySystolic:         115.0,
		types.KeyDiastolic:        75.0,
		types.KeyBloodSugar:       4.8,
		types.KeyHeightCm:         165.0,
		types.KeyWeightKg:         60.0,
	}
}

func TestPredictInvalidInput(t *testing.T) {
	predictor := newRulePredictor(t)

	_, err := predictor.Predict(types.PatientRecord{}, types.Preeclampsia)
	require.Error(t, err)
	require.True(t, IsInvalidInput(err))
	require.True(t, errors.Is(err, types.ErrInvalidInput))

	var invalid *InvalidInputError
	require.True(t, errors.As(err, &invalid))
	require.Len(t, invalid.Errors, 4)
}

func TestPredictHealthyRecord(t *testing.T) {
	predictor := newRulePredictor(t)

	for _, riskType := range types.AllRiskTypes {
		result, err := predictor.Predict(healthyRecord(), riskType)
		require.NoError(t, err)
		require.Equal(t, types.LevelLow, result.RiskLevel, riskType)
		require.Equal(t, types.RuleBasedModelType, result.ModelType)
		require.Empty(t, result.TopRiskFactors)
		require.NotEmpty(t, result.Recommendations)
		require.False(t, predictor.LastUsedML(riskType))
	}
}

func TestPredictHighRiskPreeclampsia(t *testing.T) {
	predictor := newRulePredictor(t)

	record := types.PatientRecord{
		types.KeyAge:              42.0,
		types.KeyGestationalWeeks: 30.0,
		types.KeySystolic:         150.0,
		types.KeyDiastolic:        95.0,
		types.KeyRiskFactors:      "prior preeclampsia",
	}
	result, err := predictor.PredictPreeclampsiaRisk(record)
	require.NoError(t, err)

	// 0.20 + 0.30 + 0.20 + 0.20 = 0.90
	require.InDelta(t, 0.90, result.RiskProbability, 1e-9)
	require.Equal(t, types.LevelHigh, result.RiskLevel)
	require.InDelta(t, 0.80, result.Confidence, 1e-9)
	require.Len(t, result.TopRiskFactors, 3)
	require.NotEmpty(t, result.Recommendations)
	require.LessOrEqual(t, len(result.Recommendations), 10)
}

func TestPredictDirectBMI(t *testing.T) {
	predictor := newRulePredictor(t)

	record := types.PatientRecord{
		types.KeyAge:              35.0,
		types.KeyGestationalWeeks: 28.0,
		types.KeySystolic:         145.0,
		types.KeyDiastolic:        92.0,
		"bmi":                     31.5,
		"prior_preeclampsia":      1,
	}
	result, err := predictor.PredictPreeclampsiaRisk(record)
	require.NoError(t, err)

	// 0.20 + 0.30 + 0.20 + 0.15 = 0.85
	require.InDelta(t, 0.85, result.RiskProbability, 1e-9)
	require.Equal(t, types.LevelHigh, result.RiskLevel)

	names := make([]string, len(result.TopRiskFactors))
	for i, factor := range result.TopRiskFactors {
		names[i] = factor.Name
	}
	require.Contains(t, names, "elevated_bmi")
}

func TestPredictPretermTwins(t *testing.T) {
	predictor := newRulePredictor(t)

	record := types.PatientRecord{
		types.KeyAge:              31.0,
		types.KeyGestationalWeeks: 26.0,
		types.KeyCervicalLength:   20.0,
		types.KeyPregnancyType:    types.PregnancyTwin,
		types.KeyRiskFactors:      "prior preterm",
	}
	result, err := predictor.PredictPretermBirthRisk(record)
	require.NoError(t, err)

	// 0.10 + 0.30 + 0.30 + 0.20 = 0.90
	require.InDelta(t, 0.90, result.RiskProbability, 1e-9)
	require.Equal(t, types.LevelHigh, result.RiskLevel)
}

func TestPredictUsesAliases(t *testing.T) {
	predictor := newRulePredictor(t)

	record := types.PatientRecord{
		types.KeyAge:       30.0,
		"pregnancy_weeks":  22.0,
		"blood_pressure":   150.0,
		types.KeyDiastolic: 88.0,
	}
	result, err := predictor.PredictPreeclampsiaRisk(record)
	require.NoError(t, err)
	require.InDelta(t, 0.50, result.RiskProbability, 1e-9)
}

func TestThresholds(t *testing.T) {
	predictor := newRulePredictor(t)

	t.Run("Defaults", func(t *testing.T) {
		all := predictor.GetRiskThresholds()
		require.Equal(t, types.DefaultThresholds, all[types.Preeclampsia])
	})

	t.Run("Rejects inverted bounds", func(t *testing.T) {
		require.Error(t, predictor.SetRiskThresholds(types.Preeclampsia, types.Thresholds{Low: 0.8, High: 0.4}))
		require.Error(t, predictor.SetRiskThresholds(types.Preeclampsia, types.Thresholds{Low: 0, High: 0.5}))
		require.Error(t, predictor.SetRiskThresholds("bogus", types.DefaultThresholds))
	})

	t.Run("New thresholds reclassify", func(t *testing.T) {
		record := types.PatientRecord{
			types.KeyAge:              30.0,
			types.KeyGestationalWeeks: 30.0,
			types.KeySystolic:         150.0,
			types.KeyDiastolic:        95.0,
		}
		result, err := predictor.PredictPreeclampsiaRisk(record)
		require.NoError(t, err)
		require.Equal(t, types.LevelMedium, result.RiskLevel) // 0.50

		require.NoError(t, predictor.SetRiskThresholds(types.Preeclampsia, types.Thresholds{Low: 0.2, High: 0.45}))
		result, err = predictor.PredictPreeclampsiaRisk(record)
		require.NoError(t, err)
		require.Equal(t, types.LevelHigh, result.RiskLevel)
	})
}

func activateArtifact(t *testing.T, reg *registry.Registry, riskType types.RiskType, features []string, coef []float64, intercept float64) {
	t.Helper()
	require.NoError(t, reg.Save(&registry.Artifact{
		Predictor: &linear.LogisticRegression{Coef: coef, Intercept: intercept},
		Meta: registry.Metadata{
			RiskType:        riskType,
			ModelType:       linear.TypeLogistic,
			TrainedAt:       time.Now().UTC(),
			Features:        features,
			Performance:     metrics.Report{ROCAUC: 0.9, Recall: 0.8},
			DatasetSize:     100,
			MeetsThresholds: true,
		},
	}))
}

func TestLearnedPath(t *testing.T) {
	reg := registry.New(t.TempDir())
	require.NoError(t, reg.LoadAll())
	// p1 = sigmoid(0.1*age - 2): age 28 gives ~0.69
	activateArtifact(t, reg, types.Preeclampsia, []string{types.KeyAge, "bmi"}, []float64{0.1, 0}, -2)
	predictor := New(reg)

	require.True(t, predictor.IsMLAvailable(types.Preeclampsia))
	require.False(t, predictor.IsMLAvailable(""))

	result, err := predictor.PredictPreeclampsiaRisk(healthyRecord())
	require.NoError(t, err)
	require.Equal(t, linear.TypeLogistic, result.ModelType)
	require.InDelta(t, 0.69, result.RiskProbability, 0.01)
	require.True(t, predictor.LastUsedML(types.Preeclampsia))

	t.Run("Importances surface present features", func(t *testing.T) {
		require.NotEmpty(t, result.TopRiskFactors)
		require.Equal(t, types.KeyAge, result.TopRiskFactors[0].Name)
	})

	t.Run("Versions visible", func(t *testing.T) {
		versions := predictor.ActiveVersions()
		require.NotEmpty(t, versions[types.Preeclampsia])
	})
}

func TestLearnedFailureFallsBackToRules(t *testing.T) {
	reg := registry.New(t.TempDir())
	require.NoError(t, reg.LoadAll())
	// Two features in metadata, three coefficients: every predict_proba call
	// fails with a dimension error.
	activateArtifact(t, reg, types.Preeclampsia, []string{types.KeyAge, "bmi"}, []float64{1, 1, 1}, 0)
	predictor := New(reg)

	result, err := predictor.PredictPreeclampsiaRisk(healthyRecord())
	require.NoError(t, err, "model failure must never surface to the caller")
	require.Equal(t, types.RuleBasedModelType, result.ModelType)
	require.InDelta(t, 0.20, result.RiskProbability, 1e-9)
	require.False(t, predictor.LastUsedML(types.Preeclampsia))
}

type singleClassPredictor struct{}

func (singleClassPredictor) Type() string { return "stub" }
func (singleClassPredictor) PredictProba(x []float64) ([]float64, error) {
	return []float64{1}, nil
}

func TestExplainerRejectsShortDistribution(t *testing.T) {
	artifact := &registry.Artifact{
		Predictor: singleClassPredictor{},
		Meta: registry.Metadata{
			RiskType: types.Preeclampsia,
			Version:  "v1",
			Features: []string{types.KeyAge, "bmi"},
		},
	}
	factors := newExplainer().topFactors(artifact, []float64{30, 25})
	require.Empty(t, factors)
}

func TestComprehensive(t *testing.T) {
	predictor := newRulePredictor(t)

	t.Run("Overall score is the mean of the three", func(t *testing.T) {
		result, err := predictor.PredictComprehensiveRisk(healthyRecord())
		require.NoError(t, err)
		require.Len(t, result.IndividualRisks, 3)

		var sum float64
		for _, individual := range result.IndividualRisks {
			sum += individual.RiskProbability
		}
		require.InDelta(t, sum/3, result.OverallRiskScore, 0.01)
		require.Equal(t, types.LevelLow, result.OverallRiskLevel)
		require.NotEmpty(t, result.Recommendations)
	})

	t.Run("High risk record aggregates high", func(t *testing.T) {
		record := types.PatientRecord{
			types.KeyAge:              42.0,
			types.KeyGestationalWeeks: 30.0,
			types.KeySystolic:         150.0,
			types.KeyDiastolic:        95.0,
			types.KeyBloodSugar:       12.0,
			types.KeyFastingGlucose:   6.0,
			types.KeyHeightCm:         160.0,
			types.KeyWeightKg:         85.0,
			types.KeyRiskFactors:      "prior preeclampsia, prior preterm",
		}
		result, err := predictor.PredictComprehensiveRisk(record)
		require.NoError(t, err)
		require.Equal(t, types.LevelHigh, result.OverallRiskLevel)
		require.NotEmpty(t, result.TopRiskFactors)
		require.LessOrEqual(t, len(result.TopRiskFactors), 5)

		seen := make(map[string]bool)
		for _, factor := range result.TopRiskFactors {
			require.False(t, seen[factor.Name], "factors must be de-duplicated")
			seen[factor.Name] = true
		}
	})

	t.Run("Missing glucose fills a neutral GDM entry", func(t *testing.T) {
		record := types.PatientRecord{
			types.KeyAge:              30.0,
			types.KeyGestationalWeeks: 22.0,
			types.KeySystolic:         120.0,
			types.KeyDiastolic:        78.0,
		}
		result, err := predictor.PredictComprehensiveRisk(record)
		require.NoError(t, err)
		gdm := result.IndividualRisks[types.GestationalDiabetes]
		require.Equal(t, defaultRiskProbability, gdm.RiskProbability)
		require.Equal(t, types.LevelLow, gdm.RiskLevel)
	})

	t.Run("Record invalid everywhere errors", func(t *testing.T) {
		_, err := predictor.PredictComprehensiveRisk(types.PatientRecord{})
		require.Error(t, err)
		require.True(t, IsInvalidInput(err))
	})
}

func TestRecommendationCap(t *testing.T) {
	builder := newAdviceBuilder()
	for i := 0; i < 30; i++ {
		builder.add(string(rune('a' + i)))
	}
	require.Len(t, builder.list(), maxRecommendations)

	dedup := newAdviceBuilder()
	dedup.add("x")
	dedup.add("x")
	require.Len(t, dedup.list(), 1)
}

func TestConfidence(t *testing.T) {
	predictor := newRulePredictor(t)

	record := healthyRecord()
	result, err := predictor.PredictPreeclampsiaRisk(record)
	require.NoError(t, err)
	// probability 0.20 -> confidence 2*(0.80-0.5) = 0.60
	require.InDelta(t, 0.60, result.Confidence, 1e-9)
}
