package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// ServerConfig defines the HTTP serving surface.
type ServerConfig struct {
	Address         string `koanf:"address"`
	PoolSize        int    `koanf:"poolsize"`
	ReadTimeoutSec  int    `koanf:"readtimeoutsec"`
	WriteTimeoutSec int    `koanf:"writetimeoutsec"`
	Debug           bool   `koanf:"debug"`
}

// RuntimeConfig tunes the onnxruntime environment.
type RuntimeConfig struct {
	LibraryPath    string `koanf:"librarypath"`
	IntraOpThreads int    `koanf:"intraopthreads"`
	InterOpThreads int    `koanf:"interopthreads"`
	Telemetry      bool   `koanf:"telemetry"`
}

// ModelConfig is the per-pipeline configuration surface: model binding,
// thresholds, backend preference and an optional normalization profile.
type ModelConfig struct {
	Path                string    `koanf:"path"`
	InputShape          []int64   `koanf:"inputshape"`
	OutputShape         []int64   `koanf:"outputshape"`
	InputName           string    `koanf:"inputname"`
	OutputName          string    `koanf:"outputname"`
	ConfidenceThreshold float32   `koanf:"confidencethreshold"`
	IoUThreshold        float32   `koanf:"iouthreshold"`
	Threshold           float32   `koanf:"threshold"`
	PreferredBackend    string    `koanf:"preferredbackend"`
	DeviceIndex         int       `koanf:"deviceindex"`
	Mean                []float32 `koanf:"mean"`
	Std                 []float32 `koanf:"std"`
}

// AppConfig is the root configuration object.
type AppConfig struct {
	Server       ServerConfig  `koanf:"server"`
	Runtime      RuntimeConfig `koanf:"runtime"`
	Detection    ModelConfig   `koanf:"detection"`
	Segmentation ModelConfig   `koanf:"segmentation"`
}

// Config holds the loaded configuration.
var Config AppConfig

// Init loads defaults, then the YAML file at filePath (when non-empty),
// then SHIELD_* environment overrides, e.g. SHIELD_SERVER_ADDRESS or
// SHIELD_DETECTION_PATH.
func Init(filePath string) error {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"server.address":                "127.0.0.1:8080",
		"server.poolsize":               2,
		"server.readtimeoutsec":         60,
		"server.writetimeoutsec":        60,
		"detection.inputshape":          []int64{1, 3, 640, 640},
		"detection.outputshape":         []int64{1, 29, 8400},
		"detection.confidencethreshold": 0.4,
		"detection.iouthreshold":        0.45,
		"detection.deviceindex":         -1,
		"segmentation.inputshape":       []int64{1, 3, 640, 640},
		"segmentation.outputshape":      []int64{1, 1, 640, 640},
		"segmentation.threshold":        0.5,
		"segmentation.deviceindex":      -1,
	}, "."), nil); err != nil {
		return fmt.Errorf("load config defaults: %w", err)
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.Provider("SHIELD_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SHIELD_")), "_", ".")
	}), nil); err != nil {
		return fmt.Errorf("load config environment: %w", err)
	}

	if err := k.Unmarshal("", &Config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}
