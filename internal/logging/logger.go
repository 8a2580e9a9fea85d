// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/bulkgen/internal/logbridge"
)

// Options controls logger construction.
type Options struct {
	// Development selects the colourised console encoder.
	Development bool
	// Level is the minimum level, e.g. "debug" or "info". Empty keeps the
	// zap preset default.
	Level string
	// Bridge, when set, receives every entry at or above BridgeLevel.
	Bridge *logbridge.Bridge
	// BridgeLevel defaults to info.
	BridgeLevel string
	// BridgeExclude lists logger-name prefixes kept out of the bridge.
	BridgeExclude []string
}

// New builds a zap.Logger configured for development or production and tees
// it into the log bridge when one is supplied.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	if opts.Level != "" {
		lvl, err := zap.ParseAtomicLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = lvl
	}

	var buildOpts []zap.Option
	if opts.Bridge != nil {
		bridgeLevel := zapcore.InfoLevel
		if opts.BridgeLevel != "" {
			parsed, err := zapcore.ParseLevel(opts.BridgeLevel)
			if err != nil {
				return nil, fmt.Errorf("parse bridge level: %w", err)
			}
			bridgeLevel = parsed
		}
		bridgeCore := logbridge.Core(opts.Bridge, bridgeLevel, logbridge.WithExcludedLoggers(opts.BridgeExclude...))
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, bridgeCore)
		}))
	}

	logger, err := cfg.Build(buildOpts...)
	if err != nil {
		if opts.Development {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}
