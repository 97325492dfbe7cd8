package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// root logger
var log atomic.Pointer[Logger]

// LoggingConfig is satisfied by configuration types that can supply
// per-component log levels. Declared locally to avoid an import cycle with
// pkg/config.
type LoggingConfig interface {
	GetComponentLevel(component string) string
	GetDefaultLevel() string
	IsDevelopment() bool
}

// Logger wraps zap.SugaredLogger to provide a consistent logging interface
// across the store, plus a dynamically adjustable level and an optional
// component tag used in structured fields.
type Logger struct {
	*zap.SugaredLogger
	atomicLevel zap.AtomicLevel
	component   string
}

// NewLogger creates a new logger with the specified configuration.
// level can be "debug", "info", "warn", "error".
// development mode enables stack traces and uses console encoder.
func NewLogger(level string, development bool) (*Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	atomicLevel := zap.NewAtomicLevelAt(zapLevel)
	cfg.Level = atomicLevel

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zapLogger.Sugar(), atomicLevel: atomicLevel}, nil
}

// NewComponentLogger creates a logger tagged with a component field.
// It panics if level is invalid, matching the store's fail-fast posture
// for misconfigured startup paths.
func NewComponentLogger(component, level string, development bool) *Logger {
	l, err := NewLogger(level, development)
	if err != nil {
		panic(err)
	}
	return l.WithComponent(component)
}

// NewComponentLoggerFromConfig builds a component logger from a
// LoggingConfig, falling back to info/production defaults when cfg is nil.
func NewComponentLoggerFromConfig(component string, cfg LoggingConfig) *Logger {
	level := "info"
	development := false
	if cfg != nil {
		level = cfg.GetComponentLevel(component)
		development = cfg.IsDevelopment()
	}
	return NewComponentLogger(component, level, development)
}

// NewNopLogger creates a no-op logger that discards all logs.
// Useful for testing.
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), atomicLevel: zap.NewAtomicLevelAt(zapcore.InvalidLevel)}
}

// WithComponent creates a child logger with a component name field.
// The returned logger shares the parent's atomic level, so SetLevel on
// either instance affects both.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		SugaredLogger: l.With("component", component),
		atomicLevel:   l.atomicLevel,
		component:     component,
	}
}

// GetComponent returns the component tag, or "" if untagged.
func (l *Logger) GetComponent() string {
	return l.component
}

// GetLevel returns the current minimum enabled level as a lowercase string.
func (l *Logger) GetLevel() string {
	return l.atomicLevel.Level().String()
}

// SetLevel adjusts the minimum enabled level at runtime. Leaves the level
// unchanged and returns an error if level does not parse.
func (l *Logger) SetLevel(level string) error {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.atomicLevel.SetLevel(zapLevel)
	return nil
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

// GetDefaultLogger returns the process-wide default logger, creating one
// at debug/development settings on first use.
func GetDefaultLogger() *Logger {
	if l := log.Load(); l != nil {
		return l
	}
	zapLogger, err := NewLogger("debug", true)
	if err != nil {
		panic(err)
	}
	log.Store(zapLogger)
	return log.Load()
}

// ValidLogLevels enumerates the accepted level strings for configuration
// validation.
var ValidLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}
