package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streamshield/person-detection-service/backend"
	"github.com/streamshield/person-detection-service/codec"
	"github.com/streamshield/person-detection-service/config"
	"github.com/streamshield/person-detection-service/logger"
	"github.com/streamshield/person-detection-service/pipeline"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfgFile string
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:     "streamshield",
	Short:   "Real-time person detection and segmentation over video frames",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; explicit config wins over it anyway.
		_ = godotenv.Load()
		if err := config.Init(cfgFile); err != nil {
			return err
		}
		log = logger.Get(config.Config.Server.Debug)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}

func runtimeOptions(rc config.RuntimeConfig) backend.RuntimeOptions {
	return backend.RuntimeOptions{
		SharedLibraryPath: rc.LibraryPath,
		IntraOpThreads:    rc.IntraOpThreads,
		InterOpThreads:    rc.InterOpThreads,
		Telemetry:         rc.Telemetry,
	}
}

func modelSpec(mc config.ModelConfig) backend.ModelSpec {
	return backend.ModelSpec{
		Path:        mc.Path,
		InputShape:  mc.InputShape,
		OutputShape: mc.OutputShape,
		InputName:   mc.InputName,
		OutputName:  mc.OutputName,
	}
}

func normalization(mc config.ModelConfig) *codec.Normalization {
	if len(mc.Mean) != 3 || len(mc.Std) != 3 {
		return nil
	}
	var n codec.Normalization
	copy(n.Mean[:], mc.Mean)
	copy(n.Std[:], mc.Std)
	return &n
}

func detectorConfig(mc config.ModelConfig) pipeline.DetectorConfig {
	return pipeline.DetectorConfig{
		Model:               modelSpec(mc),
		ConfidenceThreshold: mc.ConfidenceThreshold,
		IoUThreshold:        mc.IoUThreshold,
		PreferredBackend:    backend.Kind(mc.PreferredBackend),
		Normalization:       normalization(mc),
	}
}

func segmenterConfig(mc config.ModelConfig) pipeline.SegmenterConfig {
	return pipeline.SegmenterConfig{
		Model:            modelSpec(mc),
		Threshold:        mc.Threshold,
		PreferredBackend: backend.Kind(mc.PreferredBackend),
		Normalization:    normalization(mc),
	}
}
