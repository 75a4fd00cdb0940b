package main

import (
	"flag"
	"os"

	"github.com/kelseyhightower/envconfig"

	"maternalcare.com/mrp/logger"
	"maternalcare.com/mrp/registry"
	"maternalcare.com/mrp/risk"
	"maternalcare.com/mrp/s3client"
	"maternalcare.com/mrp/trainer"
	"maternalcare.com/mrp/types"
)

type Config struct {
	ModelDir          string `envconfig:"MRP_MODEL_DIR" default:"models"`
	TrainerConfigPath string `envconfig:"MRP_TRAINER_CONFIG" default:""`
}

func main() {
	logger.SetupLogging()
	mrpLogger := logger.NewLogger("Main")
	fatalErrLogger := mrpLogger.Fatal().Caller()

	train := flag.String("train", "", "dataset file (csv or json) to train all risk models from")
	flag.Parse()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to read environment")
		os.Exit(1)
	}

	reg := registry.New(config.ModelDir)
	mirror, err := s3client.FromEnvironment()
	if err != nil {
		fatalErrLogger.Err(err).Msg("Failed to configure artifact mirror")
		os.Exit(1)
	}
	if mirror != nil {
		reg.WithMirror(mirror)
	}
	if err := reg.LoadAll(); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to open model directory")
		os.Exit(1)
	}

	if *train != "" {
		cfg, err := trainer.LoadConfig(config.TrainerConfigPath)
		if err != nil {
			fatalErrLogger.Err(err).Msg("Failed to load trainer configuration")
			os.Exit(1)
		}
		reports, err := trainer.New(cfg, reg).TrainAll(*train)
		if err != nil {
			fatalErrLogger.Err(err).Msg("Training run failed")
			os.Exit(1)
		}
		for _, report := range reports {
			if report.Error != "" {
				mrpLogger.Error().
					Str("risk_type", string(report.RiskType)).
					Str("error", report.Error).
					Msg("Risk type not trained")
				continue
			}
			mrpLogger.Info().
				Str("risk_type", string(report.RiskType)).
				Str("model_type", report.ModelType).
				Str("version", report.Version).
				Float64("roc_auc", report.Holdout.ROCAUC).
				Float64("recall", report.Holdout.Recall).
				Bool("meets_thresholds", report.MeetsThresholds).
				Int("dataset_size", report.DatasetSize).
				Int("pseudo_labels", report.PseudoLabels).
				Msg("Trained risk model")
		}
		return
	}

	predictor := risk.New(reg)
	for _, riskType := range types.AllRiskTypes {
		mrpLogger.Info().
			Str("risk_type", string(riskType)).
			Bool("ml_available", predictor.IsMLAvailable(riskType)).
			Msg("Predictor ready")
	}
	mrpLogger.Info().Msg("No -train dataset given, nothing to do")
}
