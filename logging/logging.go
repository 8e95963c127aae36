// Package logging builds the process logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Verbose bool
	// File receives every log line. Empty disables file output.
	File string
	// Stderr mirrors the log to stderr. Commands that own the terminal
	// leave it off.
	Stderr bool
}

// New returns a JSON production logger, at debug level when Verbose is set.
// With neither File nor Stderr set it returns a no-op logger.
func New(opts Options) (*zap.Logger, error) {
	var outputs []string
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		outputs = append(outputs, opts.File)
	}
	if opts.Stderr {
		outputs = append(outputs, "stderr")
	}
	if len(outputs) == 0 {
		return zap.NewNop(), nil
	}

	config := zap.NewProductionConfig()
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = outputs
	config.ErrorOutputPaths = outputs
	config.Sampling = nil
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
