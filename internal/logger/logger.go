package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weathertaxi/tlcfetch/internal/config"
)

// New creates a new logger instance based on configuration.
// Logs go to stderr so report output on stdout stays machine readable.
func New(service config.ServiceConfig, cfg config.LoggerConfig) (*zap.Logger, error) {
	var zc zap.Config

	if service.Environment == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.Format == "json" {
		zc.Encoding = "json"
		zc.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	} else {
		zc.Encoding = "console"
	}

	zc.InitialFields = map[string]interface{}{
		"service": service.Name,
		"env":     service.Environment,
	}

	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	zc.EncoderConfig.CallerKey = "caller"
	zc.EncoderConfig.StacktraceKey = "stacktrace"
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build()
}

// WithRun adds the run identifier and mode to every entry.
func WithRun(logger *zap.Logger, runID, mode string) *zap.Logger {
	fields := []zap.Field{}

	if runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}
	if mode != "" {
		fields = append(fields, zap.String("mode", mode))
	}

	if len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}
