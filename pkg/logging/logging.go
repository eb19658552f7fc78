package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service-wide logger. Every line carries the service name so
// aggregated logs from several processes stay attributable.
func New(service string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		// zap.NewProduction only fails on bad config; fall back rather than die.
		logger = zap.NewNop()
	}
	return logger
}
