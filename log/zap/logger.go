/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package zap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger represents a zap logger implementation.
type Logger struct {
	lg       *zap.Logger
	sgLogger *zap.SugaredLogger
}

// NewLogger creates an initialized zap logger instance writing to stdout,
// and additionally to outputPath when not empty.
func NewLogger(level zapcore.Level, outputPath string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	outputPaths := []string{"stdout"}
	if len(outputPath) > 0 {
		outputPaths = append(outputPaths, outputPath)
	}
	cfg.OutputPaths = outputPaths

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{
		lg:       logger,
		sgLogger: logger.Sugar(),
	}, nil
}

// Debugf uses fmt.Sprintf to log a `debug` templated message.
func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.sgLogger.Debugf(msg, args...)
	_ = l.lg.Sync()
}

// Debugw writes a 'debug' message to configured logger with some additional context.
func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Debugw(msg, keysAndValues...)
	_ = l.lg.Sync()
}

// Infof uses fmt.Sprintf to log an `info` templated message.
func (l *Logger) Infof(msg string, args ...interface{}) {
	l.sgLogger.Infof(msg, args...)
	_ = l.lg.Sync()
}

// Infow writes a 'info' message to configured logger with some additional context.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Infow(msg, keysAndValues...)
	_ = l.lg.Sync()
}

// Warnf uses fmt.Sprintf to log a `warn` templated message.
func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.sgLogger.Warnf(msg, args...)
	_ = l.lg.Sync()
}

// Warnw writes a 'warning' message to configured logger with some additional context.
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Warnw(msg, keysAndValues...)
	_ = l.lg.Sync()
}

// Errorf uses fmt.Sprintf to log an `error` templated message.
func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.sgLogger.Errorf(msg, args...)
	_ = l.lg.Sync()
}

// Errorw writes an 'error' message to configured logger with some additional context.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Errorw(msg, keysAndValues...)
	_ = l.lg.Sync()
}

// Fatalf uses fmt.Sprintf to log a `fatal` templated message.
func (l *Logger) Fatalf(msg string, args ...interface{}) {
	l.sgLogger.Fatalf(msg, args...)
}
