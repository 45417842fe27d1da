// Package logger builds the zap loggers used by the CLI and handed to the
// library packages.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains configuration for the logger.
type Config struct {
	Debug  bool   // Enable debug level logging
	Format string // "json" or "human"
	File   string // Optional log file, written in addition to stderr
	Quiet  bool   // Only errors
	Plain  bool   // No ANSI colors in human output
}

// DefaultConfig returns human-readable, info-level logging to stderr.
func DefaultConfig() Config {
	return Config{Format: "human"}
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if cfg.Plain {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		zc.DisableStacktrace = true
	}

	outputs := []string{"stderr"}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		outputs = append(outputs, cfg.File)
	}
	zc.OutputPaths = outputs

	switch {
	case cfg.Quiet:
		zc.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case cfg.Debug:
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
