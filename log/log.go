/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package log

import (
	"sync"
)

// Logger represents a leveled logging backend.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// singleton interface
var (
	inst   Logger = disabledLogger{}
	instMu sync.RWMutex
)

// Set sets the global logger.
func Set(logger Logger) {
	instMu.Lock()
	inst = logger
	instMu.Unlock()
}

// Unset restores the disabled global logger.
func Unset() {
	Set(disabledLogger{})
}

func instance() Logger {
	instMu.RLock()
	defer instMu.RUnlock()
	return inst
}

// Debugf logs a 'debug' message.
func Debugf(format string, args ...interface{}) {
	instance().Debugf(format, args...)
}

// Infof logs an 'info' message.
func Infof(format string, args ...interface{}) {
	instance().Infof(format, args...)
}

// Warnf logs a 'warning' message.
func Warnf(format string, args ...interface{}) {
	instance().Warnf(format, args...)
}

// Errorf logs an 'error' message.
func Errorf(format string, args ...interface{}) {
	instance().Errorf(format, args...)
}

// Error logs an 'error' value.
func Error(err error) {
	instance().Errorf("%v", err)
}

// Fatalf logs a 'fatal' message.
// Application will terminate after logging.
func Fatalf(format string, args ...interface{}) {
	instance().Fatalf(format, args...)
}

// Debugw logs a 'debug' message with additional context.
func Debugw(msg string, keysAndValues ...interface{}) {
	instance().Debugw(msg, keysAndValues...)
}

// Infow logs an 'info' message with additional context.
func Infow(msg string, keysAndValues ...interface{}) {
	instance().Infow(msg, keysAndValues...)
}

// Warnw logs a 'warning' message with additional context.
func Warnw(msg string, keysAndValues ...interface{}) {
	instance().Warnw(msg, keysAndValues...)
}

// Errorw logs an 'error' message with additional context.
func Errorw(msg string, keysAndValues ...interface{}) {
	instance().Errorw(msg, keysAndValues...)
}

type disabledLogger struct{}

func (disabledLogger) Debugf(string, ...interface{}) {}
func (disabledLogger) Infof(string, ...interface{})  {}
func (disabledLogger) Warnf(string, ...interface{})  {}
func (disabledLogger) Errorf(string, ...interface{}) {}
func (disabledLogger) Fatalf(string, ...interface{}) {}
func (disabledLogger) Debugw(string, ...interface{}) {}
func (disabledLogger) Infow(string, ...interface{})  {}
func (disabledLogger) Warnw(string, ...interface{})  {}
func (disabledLogger) Errorw(string, ...interface{}) {}
