// Package logx supplies the minimal logging surface used across the
// container: a small interface most of the code depends on, plus a
// zap-backed implementation and a no-op fallback for callers that don't
// wire a logger in.
package logx

import (
	"go.uber.org/zap"
)

// Logger is the logging interface every component accepts. It intentionally
// exposes only leveled, printf-style methods so a caller can satisfy it with
// almost anything (zap, stdlib log, a test recorder).
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// OrNop returns l, or a no-op Logger if l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// NopLogger discards everything. Zero value is ready to use.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// Zap adapts a *zap.SugaredLogger to Logger.
type Zap struct {
	S *zap.SugaredLogger
}

// NewZap builds a development-friendly, console-encoded zap logger. Callers
// that need production JSON output should construct their own *zap.Logger
// and wrap it with Zap directly.
func NewZap() (*Zap, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &Zap{S: l.Sugar()}, nil
}

func (z *Zap) Debugf(format string, args ...any) { z.S.Debugf(format, args...) }
func (z *Zap) Infof(format string, args ...any)  { z.S.Infof(format, args...) }
func (z *Zap) Warnf(format string, args ...any)  { z.S.Warnf(format, args...) }
func (z *Zap) Errorf(format string, args ...any) { z.S.Errorf(format, args...) }
