// Package trainer fits, selects and publishes risk models from a labeled or
// pseudo-labeled dataset. Model selection is cross-validated ROC-AUC on the
// training split; the final score that gates activation comes from a
// held-out split the search never saw.
package trainer

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"maternalcare.com/mrp/features"
	"maternalcare.com/mrp/logger"
	"maternalcare.com/mrp/ml"
	"maternalcare.com/mrp/ml/ensemble"
	"maternalcare.com/mrp/ml/linear"
	"maternalcare.com/mrp/ml/metrics"
	"maternalcare.com/mrp/ml/preprocess"
	"maternalcare.com/mrp/ml/tree"
	"maternalcare.com/mrp/registry"
	"maternalcare.com/mrp/types"
)

// minTrainingRows is the floor below which cross-validation folds become
// too small to mean anything.
const minTrainingRows = 50

type Trainer struct {
	cfg      Config
	registry *registry.Registry
	log      zerolog.Logger
}

func New(cfg Config, reg *registry.Registry) *Trainer {
	return &Trainer{cfg: cfg, registry: reg, log: logger.NewLogger("ModelTrainer")}
}

// Report summarizes one risk type's training run. Error is set when the run
// for that risk type failed; the other fields are then zero.
type Report struct {
	RiskType        types.RiskType `json:"risk_type"`
	ModelType       string         `json:"model_type"`
	CVScore         float64        `json:"cv_score"`
	Holdout         metrics.Report `json:"holdout"`
	MeetsThresholds bool           `json:"meets_thresholds"`
	Version         string         `json:"version"`
	DatasetSize     int            `json:"dataset_size"`
	PseudoLabels    int            `json:"pseudo_labels"`
	Error           string         `json:"error,omitempty"`
}

// TrainAll trains every risk type from one dataset file. A risk type that
// cannot be trained gets an error report instead of aborting the batch; the
// call itself fails only when the dataset is unreadable.
func (t *Trainer) TrainAll(datasetPath string) ([]Report, error) {
	ds, err := LoadDataset(datasetPath)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(types.AllRiskTypes))
	for _, riskType := range types.AllRiskTypes {
		report, err := t.Train(ds, riskType)
		if err != nil {
			t.log.Error().Err(err).Str("risk_type", string(riskType)).Msg("Training failed for risk type")
			report = Report{RiskType: riskType, Error: err.Error()}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (t *Trainer) Train(ds *Dataset, riskType types.RiskType) (Report, error) {
	started := time.Now()
	order := features.DefaultOrder(riskType)
	X, y, pseudoLabels := ds.Matrix(riskType, order, t.cfg.LabelColumn(riskType))

	if len(X) < minTrainingRows {
		return Report{}, fmt.Errorf("%d rows for %s, need at least %d", len(X), riskType, minTrainingRows)
	}
	if singleClass(y) {
		return Report{}, fmt.Errorf("labels for %s are single-class", riskType)
	}

	t.impute(X)
	trainIdx, testIdx := metrics.StratifiedSplit(y, t.cfg.TestSize, t.cfg.RandomState)

	scaler := preprocess.NewScaler(t.cfg.Scaling)
	if fittable, ok := scaler.(preprocess.Fittable); ok && scaler != nil {
		fittable.Fit(gather(X, trainIdx))
		var err error
		if X, err = transformAll(scaler, X); err != nil {
			return Report{}, err
		}
	}

	Xtrain, ytrain := gather(X, trainIdx), gatherLabels(y, trainIdx)
	Xtest, ytest := gather(X, testIdx), gatherLabels(y, testIdx)

	candidates := t.searchCandidates(Xtrain, ytrain)
	if len(candidates) == 0 {
		return Report{}, fmt.Errorf("no trainable algorithm configured for %s", riskType)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].cvScore > candidates[b].cvScore
	})

	best := candidates[0]
	model, err := fit(best.algorithm, Xtrain, ytrain, best.params, t.cfg.RandomState)
	if err != nil {
		return Report{}, err
	}
	modelType := best.algorithm
	holdout := evaluate(model, Xtest, ytest)

	if t.cfg.UseEnsemble && len(candidates) >= 2 {
		combined, err := t.buildEnsemble(candidates, Xtrain, ytrain)
		if err != nil {
			t.log.Warn().Err(err).Msg("Ensemble construction failed, keeping single best model")
		} else if ensembleHoldout := evaluate(combined, Xtest, ytest); ensembleHoldout.ROCAUC > holdout.ROCAUC {
			model, modelType, holdout = combined, ensemble.TypeEnsemble, ensembleHoldout
		}
	}

	meets := holdout.Recall >= t.cfg.Thresholds.MinRecall && holdout.ROCAUC >= t.cfg.Thresholds.MinROCAUC
	artifact := &registry.Artifact{
		Predictor:    model,
		Preprocessor: scaler,
		Meta: registry.Metadata{
			RiskType:        riskType,
			ModelType:       modelType,
			TrainedAt:       time.Now().UTC(),
			Features:        order,
			Performance:     holdout,
			DatasetSize:     len(X),
			MeetsThresholds: meets,
		},
	}
	if err := t.registry.Save(artifact); err != nil {
		return Report{}, err
	}

	t.log.Info().
		Str("risk_type", string(riskType)).
		Str("model_type", modelType).
		Float64("cv_score", best.cvScore).
		Float64("holdout_roc_auc", holdout.ROCAUC).
		Bool("meets_thresholds", meets).
		Dur("elapsed", time.Since(started)).
		Msg("Training run complete")

	return Report{
		RiskType:        riskType,
		ModelType:       modelType,
		CVScore:         best.cvScore,
		Holdout:         holdout,
		MeetsThresholds: meets,
		Version:         artifact.Meta.Version,
		DatasetSize:     len(X),
		PseudoLabels:    pseudoLabels,
	}, nil
}

type candidate struct {
	algorithm string
	params    map[string]float64
	cvScore   float64
}

// searchCandidates cross-validates every hyperparameter combination for
// every configured algorithm and keeps the best combination of each.
func (t *Trainer) searchCandidates(X [][]float64, y []int) []candidate {
	folds := metrics.StratifiedKFold(y, t.cfg.CVFolds, t.cfg.RandomState)
	var out []candidate
	for _, algorithm := range t.cfg.ModelsToTrain {
		if !knownAlgorithm(algorithm) {
			t.log.Warn().Str("algorithm", algorithm).Msg("Unknown algorithm in models_to_train, skipping")
			continue
		}
		best := candidate{algorithm: algorithm, cvScore: -1}
		for _, params := range t.combinations(algorithm) {
			score, err := t.crossValScore(algorithm, X, y, params, folds)
			if err != nil {
				t.log.Warn().Err(err).Str("algorithm", algorithm).Msg("Candidate failed cross-validation")
				continue
			}
			if score > best.cvScore {
				best.cvScore = score
				best.params = params
			}
		}
		if best.cvScore >= 0 {
			out = append(out, best)
		}
	}
	return out
}

// combinations expands the parameter grid: full cartesian product for grid
// search, a seeded sample of it for random search, defaults-only otherwise.
func (t *Trainer) combinations(algorithm string) []map[string]float64 {
	if t.cfg.Search == SearchNone {
		return []map[string]float64{{}}
	}
	grid := t.cfg.Grid(algorithm)
	names := make([]string, 0, len(grid))
	for name := range grid {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]float64{{}}
	for _, name := range names {
		var next []map[string]float64
		for _, base := range combos {
			for _, value := range grid[name] {
				combo := make(map[string]float64, len(base)+1)
				for k, v := range base {
					combo[k] = v
				}
				combo[name] = value
				next = append(next, combo)
			}
		}
		combos = next
	}

	if t.cfg.Search == SearchRandom && t.cfg.NIter > 0 && t.cfg.NIter < len(combos) {
		rng := rand.New(rand.NewSource(t.cfg.RandomState))
		rng.Shuffle(len(combos), func(a, b int) { combos[a], combos[b] = combos[b], combos[a] })
		combos = combos[:t.cfg.NIter]
	}
	return combos
}

func (t *Trainer) crossValScore(algorithm string, X [][]float64, y []int, params map[string]float64, folds [][]int) (float64, error) {
	var total float64
	scored := 0
	for f, testFold := range folds {
		if len(testFold) == 0 {
			continue
		}
		inTest := make(map[int]bool, len(testFold))
		for _, i := range testFold {
			inTest[i] = true
		}
		var trainIdx []int
		for i := range X {
			if !inTest[i] {
				trainIdx = append(trainIdx, i)
			}
		}
		ytrain := gatherLabels(y, trainIdx)
		yfold := gatherLabels(y, testFold)
		if singleClass(ytrain) || singleClass(yfold) {
			continue
		}
		model, err := fit(algorithm, gather(X, trainIdx), ytrain, params, t.cfg.RandomState+int64(f))
		if err != nil {
			return 0, err
		}
		scores, err := predictAll(model, gather(X, testFold))
		if err != nil {
			return 0, err
		}
		total += metrics.ROCAUC(yfold, scores)
		scored++
	}
	if scored == 0 {
		return 0, fmt.Errorf("no scoreable folds for %s", algorithm)
	}
	return total / float64(scored), nil
}

// buildEnsemble refits the top candidates on the full training split and
// weights them by their cross-validation scores.
func (t *Trainer) buildEnsemble(candidates []candidate, X [][]float64, y []int) (ml.Predictor, error) {
	topK := t.cfg.EnsembleTopK
	if topK > len(candidates) {
		topK = len(candidates)
	}
	combined := &ensemble.Ensemble{Method: t.cfg.EnsembleMethod}
	for _, c := range candidates[:topK] {
		member, err := fit(c.algorithm, X, y, c.params, t.cfg.RandomState)
		if err != nil {
			return nil, err
		}
		combined.Members = append(combined.Members, member)
		combined.Weights = append(combined.Weights, c.cvScore)
	}
	return combined, nil
}

func (t *Trainer) impute(X [][]float64) {
	switch t.cfg.Imputation {
	case "mean":
		preprocess.ImputeMean(X)
	case "median":
		preprocess.ImputeMedian(X)
	case "mode":
		preprocess.ImputeMode(X)
	default:
		preprocess.ImputeKNN(X, t.cfg.KNNNeighbors)
	}
}

func knownAlgorithm(name string) bool {
	switch name {
	case AlgoLogistic, AlgoRandomForest, AlgoGradientBoosting:
		return true
	}
	return false
}

func fit(algorithm string, X [][]float64, y []int, params map[string]float64, seed int64) (ml.Predictor, error) {
	get := func(name string, fallback float64) float64 {
		if v, ok := params[name]; ok {
			return v
		}
		return fallback
	}
	switch algorithm {
	case AlgoLogistic:
		opts := linear.DefaultFitOptions()
		opts.C = get("C", opts.C)
		return linear.Fit(X, y, opts), nil
	case AlgoRandomForest:
		opts := tree.DefaultForestOptions()
		opts.NEstimators = int(get("n_estimators", float64(opts.NEstimators)))
		opts.MaxDepth = int(get("max_depth", float64(opts.MaxDepth)))
		opts.Seed = seed
		return tree.FitForest(X, y, opts), nil
	case AlgoGradientBoosting:
		opts := tree.DefaultBoostingOptions()
		opts.NEstimators = int(get("n_estimators", float64(opts.NEstimators)))
		opts.LearningRate = get("learning_rate", opts.LearningRate)
		opts.MaxDepth = int(get("max_depth", float64(opts.MaxDepth)))
		opts.Seed = seed
		return tree.FitBoosting(X, y, opts), nil
	}
	return nil, fmt.Errorf("unknown algorithm %q", algorithm)
}

func predictAll(model ml.Predictor, X [][]float64) ([]float64, error) {
	scores := make([]float64, len(X))
	for i := range X {
		proba, err := model.PredictProba(X[i])
		if err != nil {
			return nil, err
		}
		scores[i] = proba[1]
	}
	return scores, nil
}

func evaluate(model ml.Predictor, X [][]float64, y []int) metrics.Report {
	scores, err := predictAll(model, X)
	if err != nil {
		return metrics.Report{}
	}
	return metrics.Evaluate(y, scores)
}

func transformAll(scaler ml.Transformer, X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i := range X {
		scaled, err := scaler.Transform(X[i])
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

func gather(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func gatherLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

func singleClass(y []int) bool {
	if len(y) == 0 {
		return true
	}
	first := y[0]
	for _, label := range y {
		if label != first {
			return false
		}
	}
	return true
}
