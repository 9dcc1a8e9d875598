package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given environment: "production" gets JSON
// output at info level, "test" the example logger, anything else the
// development console logger. verbose lowers the level to debug.
func New(environment string, verbose bool) (*zap.Logger, error) {
	switch environment {
	case "production":
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		return cfg.Build()
	case "test":
		return zap.NewExample(), nil
	default:
		cfg := zap.NewDevelopmentConfig()
		if !verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
		cfg.DisableStacktrace = !verbose
		return cfg.Build()
	}
}
