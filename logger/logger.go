package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// Get returns the process-wide zap logger. Debug mode switches to a
// console encoder with debug level; production mode logs JSON at info.
func Get(debug bool) *zap.Logger {
	once.Do(func() {
		var core zapcore.Core
		if debug {
			core = zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.Lock(os.Stderr),
				zapcore.DebugLevel,
			)
		} else {
			core = zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.Lock(os.Stderr),
				zapcore.InfoLevel,
			)
		}
		logger = zap.New(core)
	})
	return logger
}
