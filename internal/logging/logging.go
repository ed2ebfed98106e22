// Package logging builds the zap logger used throughout the server,
// mapping the config's 0..4 ordinal onto zap's level enabler.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levels maps the config ordinal directly onto the minimum zap level that
// will be emitted: 0 enables only Fatal, 4 enables everything down to
// Debug. The ordinal is a floor on a single, monotonically-more-verbose
// axis, so FATAL is always visible regardless of configuration.
var levels = [5]zapcore.Level{
	zapcore.FatalLevel,
	zapcore.ErrorLevel,
	zapcore.WarnLevel,
	zapcore.InfoLevel,
	zapcore.DebugLevel,
}

// New builds a production-style zap.Logger (JSON encoding, ISO8601
// timestamps) enabled at the level named by ordinal (clamped to [0,4]).
func New(ordinal int) (*zap.Logger, error) {
	if ordinal < 0 {
		ordinal = 0
	}
	if ordinal > 4 {
		ordinal = 4
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(levels[ordinal])
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return logger, nil
}
