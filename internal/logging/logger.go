// Package logging builds the zap loggers used across ragchat.
// One-shot CLI commands log JSON to stderr. The interactive TUI owns the
// terminal, so it logs only to a size-rotated file, or nowhere when debug
// mode is off.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config resolution
	CategoryGateway   Category = "gateway"   // Backend HTTP calls
	CategoryReadiness Category = "readiness" // File listing, upload, delete
	CategorySession   Category = "session"   // Chat state machine
	CategoryIngest    Category = "ingest"    // Folder watcher
	CategoryUI        Category = "ui"        // TUI events
)

// Options controls logger construction.
type Options struct {
	Level     string // debug, info, warn, error
	Verbose   bool   // forces debug
	File      string // rotated sink; empty = stderr
	DebugMode bool   // only consulted for file sinks
}

// ParseLevel maps a config level to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
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

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	if opts.File == "" {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		logger, err := config.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return logger, nil
	}

	if !opts.DebugMode && !opts.Verbose {
		return zap.NewNop(), nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     14, // Days
		Compress:   true,
	}

	return zap.New(zapcore.NewCore(fileEncoder(), zapcore.AddSync(rotator), level), zap.AddCaller()), nil
}

func fileEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// Named returns the category child of l, substituting a no-op logger for nil.
func Named(l *zap.Logger, category Category) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(string(category))
}
