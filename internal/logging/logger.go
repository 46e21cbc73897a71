// Package logging builds the process zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option adjusts the zap configuration before the logger is built
type Option func(*zap.Config)

// WithLevel sets the minimum level from its name (debug, info, warn, error)
func WithLevel(name string) Option {
	return func(config *zap.Config) {
		config.Level = zap.NewAtomicLevelAt(ParseLevel(name))
	}
}

// WithDevelopment switches to the human readable console encoder
func WithDevelopment() Option {
	return func(config *zap.Config) {
		level := config.Level
		*config = zap.NewDevelopmentConfig()
		config.Level = level
	}
}

// WithDeviceID stamps every entry with the device identity
func WithDeviceID(id string) Option {
	return func(config *zap.Config) {
		if id == "" {
			return
		}
		if config.InitialFields == nil {
			config.InitialFields = map[string]interface{}{}
		}
		config.InitialFields["device_id"] = id
	}
}

// WithOutput replaces stdout/stderr with the given paths
func WithOutput(paths ...string) Option {
	return func(config *zap.Config) {
		config.OutputPaths = paths
		config.ErrorOutputPaths = paths
	}
}

// New builds a production JSON logger with the given options applied
func New(options ...Option) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	for _, option := range options {
		option(&config)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a level name to a zap level, defaulting to info
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
