package linear

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"maternalcare.com/mrp/ml"
)

// separable returns points where class 1 sits above x0=0 and class 0 below.
func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		label := i % 2
		offset := -1.5
		if label == 1 {
			offset = 1.5
		}
		X[i] = []float64{offset + rng.NormFloat64()*0.3, rng.NormFloat64()}
		y[i] = label
	}
	return X, y
}

func TestFit(t *testing.T) {
	X, y := separable(200, 1)
	model := Fit(X, y, DefaultFitOptions())

	t.Run("Learns the separating direction", func(t *testing.T) {
		require.Greater(t, model.Coef[0], 0.5)

		high, err := model.PredictProba([]float64{2, 0})
		require.NoError(t, err)
		require.Greater(t, high[1], 0.9)

		low, err := model.PredictProba([]float64{-2, 0})
		require.NoError(t, err)
		require.Less(t, low[1], 0.1)
	})

	t.Run("Probabilities are a distribution", func(t *testing.T) {
		proba, err := model.PredictProba([]float64{0.3, -0.7})
		require.NoError(t, err)
		require.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)
	})

	t.Run("Importances are normalized", func(t *testing.T) {
		imp := model.FeatureImportances()
		require.Len(t, imp, 2)
		require.InDelta(t, 1.0, imp[0]+imp[1], 1e-9)
		require.Greater(t, imp[0], imp[1])
	})
}

func TestDimensionMismatch(t *testing.T) {
	model := &LogisticRegression{Coef: []float64{1, 2}}
	_, err := model.PredictProba([]float64{1})
	require.Error(t, err)
	var dimErr *ml.DimensionError
	require.True(t, errors.As(err, &dimErr))
	require.Equal(t, 2, dimErr.Want)
}

func TestCodecRoundTrip(t *testing.T) {
	X, y := separable(100, 2)
	model := Fit(X, y, DefaultFitOptions())

	encoded, err := ml.EncodePredictor(model)
	require.NoError(t, err)
	decoded, err := ml.DecodePredictor(encoded)
	require.NoError(t, err)
	require.Equal(t, TypeLogistic, decoded.Type())

	x := []float64{0.8, -0.2}
	want, err := model.PredictProba(x)
	require.NoError(t, err)
	got, err := decoded.PredictProba(x)
	require.NoError(t, err)
	require.InDelta(t, want[1], got[1], 1e-12)
}

func TestBalancedWeights(t *testing.T) {
	// 9:1 imbalance; balanced fitting must not collapse to the majority.
	rng := rand.New(rand.NewSource(3))
	var X [][]float64
	var y []int
	for i := 0; i < 180; i++ {
		X = append(X, []float64{-1 + rng.NormFloat64()*0.3})
		y = append(y, 0)
	}
	for i := 0; i < 20; i++ {
		X = append(X, []float64{1 + rng.NormFloat64()*0.3})
		y = append(y, 1)
	}
	model := Fit(X, y, DefaultFitOptions())
	proba, err := model.PredictProba([]float64{1})
	require.NoError(t, err)
	require.Greater(t, proba[1], 0.5)
}
