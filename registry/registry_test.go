package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"maternalcare.com/mrp/ml/linear"
	"maternalcare.com/mrp/ml/metrics"
	"maternalcare.com/mrp/ml/preprocess"
	"maternalcare.com/mrp/types"
)

func testArtifact(riskType types.RiskType, meets bool) *Artifact {
	scaler := &preprocess.StandardScaler{}
	scaler.Fit([][]float64{{1, 2}, {3, 4}, {5, 6}})
	return &Artifact{
		Predictor:    &linear.LogisticRegression{Coef: []float64{0.5, -0.25}, Intercept: 0.1},
		Preprocessor: scaler,
		Meta: Metadata{
			RiskType:        riskType,
			ModelType:       linear.TypeLogistic,
			TrainedAt:       time.Now().UTC(),
			Features:        []string{"age", "bmi"},
			Performance:     metrics.Report{ROCAUC: 0.85, Recall: 0.75},
			DatasetSize:     200,
			MeetsThresholds: meets,
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	saved := New(dir)
	require.NoError(t, saved.LoadAll())
	require.NoError(t, saved.Save(testArtifact(types.Preeclampsia, true)))

	t.Run("Artifact files on disk", func(t *testing.T) {
		for _, name := range []string{
			"preeclampsia_model.json",
			"preeclampsia_model_info.json",
			"preeclampsia_preprocessor.json",
			"version_info.json",
		} {
			_, err := os.Stat(filepath.Join(dir, name))
			require.NoError(t, err, name)
		}
	})

	t.Run("Fresh registry loads it back", func(t *testing.T) {
		loaded := New(dir)
		require.NoError(t, loaded.LoadAll())

		artifact, ok := loaded.GetActive(types.Preeclampsia)
		require.True(t, ok)
		require.Equal(t, linear.TypeLogistic, artifact.Meta.ModelType)
		require.NotNil(t, artifact.Preprocessor)

		scaled, err := artifact.Preprocessor.Transform([]float64{3, 4})
		require.NoError(t, err)
		proba, err := artifact.Predictor.PredictProba(scaled)
		require.NoError(t, err)
		require.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)
	})

	t.Run("Availability flags", func(t *testing.T) {
		loaded := New(dir)
		require.NoError(t, loaded.LoadAll())
		require.True(t, loaded.IsAvailable(types.Preeclampsia))
		require.False(t, loaded.IsAvailable(types.PretermBirth))
		require.False(t, loaded.IsAvailable(""), "empty argument means every risk type")
	})
}

func TestBelowThresholdNotActivated(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir)
	require.NoError(t, reg.LoadAll())

	rejected := testArtifact(types.GestationalDiabetes, false)
	rejected.Meta.Version = "20260301000000"
	require.NoError(t, reg.Save(rejected))

	_, ok := reg.GetActive(types.GestationalDiabetes)
	require.False(t, ok)
	require.False(t, reg.IsAvailable(types.GestationalDiabetes))

	// The versioned copy still exists for inspection, but the serving files
	// are untouched.
	_, err := os.Stat(filepath.Join(dir, "gestational_diabetes_model.20260301000000.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "gestational_diabetes_model.json"))
	require.True(t, os.IsNotExist(err))

	t.Run("Still inactive after a restart", func(t *testing.T) {
		fresh := New(dir)
		require.NoError(t, fresh.LoadAll())
		_, ok := fresh.GetActive(types.GestationalDiabetes)
		require.False(t, ok)
	})

	t.Run("Does not displace a serving model", func(t *testing.T) {
		good := testArtifact(types.GestationalDiabetes, true)
		good.Meta.Version = "20260401000000"
		require.NoError(t, reg.Save(good))

		worse := testArtifact(types.GestationalDiabetes, false)
		worse.Meta.Version = "20260501000000"
		require.NoError(t, reg.Save(worse))

		active, ok := reg.GetActive(types.GestationalDiabetes)
		require.True(t, ok)
		require.Equal(t, "20260401000000", active.Meta.Version)

		fresh := New(dir)
		require.NoError(t, fresh.LoadAll())
		active, ok = fresh.GetActive(types.GestationalDiabetes)
		require.True(t, ok)
		require.Equal(t, "20260401000000", active.Meta.Version)
	})
}

func TestCorruptArtifactSkipped(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir)
	require.NoError(t, reg.LoadAll())

	artifact := testArtifact(types.Preeclampsia, true)
	artifact.Meta.Version = "20260101000000"
	require.NoError(t, reg.Save(artifact))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "preeclampsia_model.20260101000000.json"), []byte("{not json"), 0o644))

	fresh := New(dir)
	require.NoError(t, fresh.LoadAll(), "a corrupt artifact must not fail startup")
	_, ok := fresh.GetActive(types.Preeclampsia)
	require.False(t, ok)
}

func TestFeatureHashMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir)
	require.NoError(t, reg.LoadAll())

	artifact := testArtifact(types.Preeclampsia, true)
	artifact.Meta.Version = "20260101000000"
	require.NoError(t, reg.Save(artifact))

	infoPath := filepath.Join(dir, "preeclampsia_model_info.20260101000000.json")
	data, err := os.ReadFile(infoPath)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	meta.Features = []string{"bmi", "age"} // reordered behind the hash's back
	edited, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(infoPath, edited, 0o644))

	fresh := New(dir)
	require.NoError(t, fresh.LoadAll())
	_, ok := fresh.GetActive(types.Preeclampsia)
	require.False(t, ok, "edited feature order must be rejected")
}

func TestHotSwap(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir)
	require.NoError(t, reg.LoadAll())

	first := testArtifact(types.Preeclampsia, true)
	first.Meta.Version = "20260101000000"
	require.NoError(t, reg.Save(first))

	inFlight, ok := reg.GetActive(types.Preeclampsia)
	require.True(t, ok)

	second := testArtifact(types.Preeclampsia, true)
	second.Meta.Version = "20260201000000"
	require.NoError(t, reg.Save(second))

	active, _ := reg.GetActive(types.Preeclampsia)
	require.Equal(t, "20260201000000", active.Meta.Version)
	// The snapshot taken before the swap is still usable.
	require.Equal(t, "20260101000000", inFlight.Meta.Version)

	t.Run("Roll back to a known version", func(t *testing.T) {
		require.NoError(t, reg.SetActive(types.Preeclampsia, "20260101000000"))
		active, _ := reg.GetActive(types.Preeclampsia)
		require.Equal(t, "20260101000000", active.Meta.Version)

		require.Error(t, reg.SetActive(types.Preeclampsia, "29990101000000"))
	})

	t.Run("Rollback survives a restart", func(t *testing.T) {
		fresh := New(dir)
		require.NoError(t, fresh.LoadAll())
		active, ok := fresh.GetActive(types.Preeclampsia)
		require.True(t, ok)
		require.Equal(t, "20260101000000", active.Meta.Version)
	})

	t.Run("Versioned copies on disk", func(t *testing.T) {
		for _, version := range []string{"20260101000000", "20260201000000"} {
			_, err := os.Stat(filepath.Join(dir, "preeclampsia_model."+version+".json"))
			require.NoError(t, err, version)
		}
	})
}

type mapMirror struct {
	files map[string][]byte
}

func (m *mapMirror) Pull(name string) ([]byte, error) { return m.files[name], nil }
func (m *mapMirror) Push(name string, data []byte) error {
	m.files[name] = append([]byte{}, data...)
	return nil
}
func (m *mapMirror) List() ([]string, error) {
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	return names, nil
}

func TestMirror(t *testing.T) {
	mirror := &mapMirror{files: map[string][]byte{}}

	source := New(t.TempDir()).WithMirror(mirror)
	require.NoError(t, source.LoadAll())
	require.NoError(t, source.Save(testArtifact(types.PretermBirth, true)))
	require.NotEmpty(t, mirror.files)

	// A replica with an empty local directory hydrates from the mirror.
	replica := New(t.TempDir()).WithMirror(mirror)
	require.NoError(t, replica.LoadAll())
	artifact, ok := replica.GetActive(types.PretermBirth)
	require.True(t, ok)
	require.Equal(t, linear.TypeLogistic, artifact.Meta.ModelType)
}
