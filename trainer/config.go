package trainer

import (
	"os"

	"gopkg.in/yaml.v3"

	"maternalcare.com/mrp/types"
)

// Algorithm names accepted in models_to_train. Names outside this set are
// logged and skipped so a config written for another stack degrades softly.
const (
	AlgoLogistic         = "logistic_regression"
	AlgoRandomForest     = "random_forest"
	AlgoGradientBoosting = "gradient_boosting"
)

const (
	SearchGrid   = "grid"
	SearchRandom = "random"
	SearchNone   = "none"
)

// PerformanceThresholds gate activation: a model below either bound is saved
// for inspection but never serves traffic.
type PerformanceThresholds struct {
	MinRecall float64 `yaml:"min_recall"`
	MinROCAUC float64 `yaml:"min_roc_auc"`
}

// ParamGrid maps a hyperparameter name to its candidate values.
type ParamGrid map[string][]float64

type Config struct {
	TestSize    float64 `yaml:"test_size"`
	RandomState int64   `yaml:"random_state"`
	CVFolds     int     `yaml:"cv_folds"`
	Scoring     string  `yaml:"scoring"`

	Search string `yaml:"hyperparameter_search"`
	NIter  int    `yaml:"n_iter"`

	Imputation   string `yaml:"imputation"`
	KNNNeighbors int    `yaml:"knn_neighbors"`
	Scaling      string `yaml:"scaling"`

	ModelsToTrain  []string `yaml:"models_to_train"`
	UseEnsemble    bool     `yaml:"use_ensemble"`
	EnsembleMethod string   `yaml:"ensemble_method"`
	EnsembleTopK   int      `yaml:"ensemble_top_k"`

	Thresholds PerformanceThresholds `yaml:"performance_thresholds"`

	// LabelColumns overrides the default "<risk_type>_label" column name.
	LabelColumns map[string]string `yaml:"label_columns"`

	ParamGrids map[string]ParamGrid `yaml:"param_grids"`
}

func DefaultConfig() Config {
	return Config{
		TestSize:       0.2,
		RandomState:    42,
		CVFolds:        5,
		Scoring:        "roc_auc",
		Search:         SearchGrid,
		NIter:          10,
		Imputation:     "knn",
		KNNNeighbors:   5,
		Scaling:        "standard",
		ModelsToTrain:  []string{AlgoLogistic, AlgoRandomForest, AlgoGradientBoosting},
		UseEnsemble:    true,
		EnsembleMethod: "weighted_average",
		EnsembleTopK:   3,
		Thresholds:     PerformanceThresholds{MinRecall: 0.70, MinROCAUC: 0.80},
		ParamGrids:     defaultParamGrids(),
	}
}

func defaultParamGrids() map[string]ParamGrid {
	return map[string]ParamGrid{
		AlgoLogistic: {
			"C": {0.1, 1, 10},
		},
		AlgoRandomForest: {
			"n_estimators": {50, 100},
			"max_depth":    {5, 10},
		},
		AlgoGradientBoosting: {
			"n_estimators":  {50, 100},
			"learning_rate": {0.05, 0.1},
			"max_depth":     {2, 3},
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.CVFolds < 2 {
		cfg.CVFolds = 2
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		cfg.TestSize = 0.2
	}
	if cfg.EnsembleTopK < 2 {
		cfg.EnsembleTopK = 2
	}
	return cfg, nil
}

// LabelColumn resolves the label column name for one risk type.
func (c Config) LabelColumn(riskType types.RiskType) string {
	if name, ok := c.LabelColumns[string(riskType)]; ok && name != "" {
		return name
	}
	return string(riskType) + "_label"
}

// Grid returns the configured candidate values for one algorithm, falling
// back to the built-in grid.
func (c Config) Grid(algorithm string) ParamGrid {
	if grid, ok := c.ParamGrids[algorithm]; ok && len(grid) > 0 {
		return grid
	}
	return defaultParamGrids()[algorithm]
}
