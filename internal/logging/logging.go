// Package logging wires go.uber.org/zap (present in the reference
// implementation's go.mod but unused by its source) as the core's structured
// logger, replacing the reference implementation's gin-request logger
// middleware with field-based logging of transport events (MLLP listener
// and sender, file inbox, circuit-breaker state changes).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger at the given level ("debug", "info", "warn",
// "error"), matching the reference implementation's LoggingConfig.Level
// convention.
func New(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Nop returns a no-op logger, used as a safe default in components that are
// constructed without DI (e.g. unit tests).
func Nop() *zap.Logger {
	return zap.NewNop()
}
