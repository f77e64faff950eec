// Package logging builds the process-wide zap logger from the config's
// log_level (spec.md §6), the ambient logging stack for every other
// package in this module.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// levelFor maps the Trojan config's 0-5 log_level to a zap level.
// Lower numbers are noisier, matching the original's verbosity scale
// (0 = trace-like, 5 = fatal-only).
func levelFor(logLevel uint8) zapcore.Level {
	switch {
	case logLevel == 0:
		return zapcore.DebugLevel
	case logLevel == 1:
		return zapcore.InfoLevel
	case logLevel == 2:
		return zapcore.WarnLevel
	case logLevel == 3:
		return zapcore.ErrorLevel
	case logLevel == 4:
		return zapcore.DPanicLevel
	default:
		return zapcore.FatalLevel
	}
}

// New builds a logger for the given log_level. log_level 0 switches to
// zap's development encoder (console-friendly, stack traces on warn+);
// every other level uses the production JSON encoder suited to being
// piped into a log aggregator.
func New(logLevel uint8) (*zap.Logger, error) {
	level := levelFor(logLevel)

	if logLevel == 0 {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
