// Package tunnellog provides the ambient structured logger used across the
// authentication core. It is a thin, swappable wrapper over
// go.uber.org/zap, exposing a package-level singleton so call sites never
// need to thread a logger handle through every function signature, while
// still letting tests install a capturing logger.
package tunnellog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Value // holds *zap.SugaredLogger

func init() {
	l, _ := zap.NewProduction()
	if l == nil {
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

// Set installs a logger, returning a restore function for tests.
func Set(l *zap.SugaredLogger) (restore func()) {
	prev := singleton.Load()
	singleton.Store(l)
	return func() { singleton.Store(prev) }
}

func current() *zap.SugaredLogger {
	return singleton.Load().(*zap.SugaredLogger)
}

func Debug(msg string)                          { current().Debug(msg) }
func Debugf(format string, args ...any)          { current().Debugf(format, args...) }
func Debugw(msg string, kv ...any)               { current().Debugw(msg, kv...) }
func Info(msg string)                            { current().Info(msg) }
func Infof(format string, args ...any)           { current().Infof(format, args...) }
func Infow(msg string, kv ...any)                { current().Infow(msg, kv...) }
func Warn(msg string)                            { current().Warn(msg) }
func Warnf(format string, args ...any)           { current().Warnf(format, args...) }
func Warnw(msg string, kv ...any)                { current().Warnw(msg, kv...) }
func Error(msg string)                           { current().Error(msg) }
func Errorf(format string, args ...any)          { current().Errorf(format, args...) }
func Errorw(msg string, kv ...any)                { current().Errorw(msg, kv...) }

// Audit is a dedicated logger for state-affecting events: discovery
// attempt/success/failure, registration, authorization start/success,
// token exchange success/failure, callbacks, session termination. Kept
// distinct from the general logger so an embedding application can route
// it to a different sink without touching debug noise.
type Audit struct {
	l *zap.SugaredLogger
}

// NewAudit wraps the current logger with a "channel"="audit" field so audit events
// are trivially filterable downstream.
func NewAudit() *Audit {
	return &Audit{l: current().With("channel", "audit")}
}

// Event records a single audit event. kv must be an even-length list of
// alternating keys and values, matching zap's Infow convention. Token
// values must never be passed here — callers are responsible for that
// invariant.
func (a *Audit) Event(name string, kv ...any) {
	a.l.Infow(name, kv...)
}
