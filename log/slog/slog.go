// Package slog adapts log/slog to the cachekit logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/cachekit/log"
)

var _ log.Logger = Logger{}

// Logger writes through L. Records below the handler's level are dropped
// before any attributes are built.
type Logger struct{ L *stdslog.Logger }

// New wraps l, tagging every record with component=cachekit.
func New(l *stdslog.Logger) Logger {
	return Logger{L: l.With(stdslog.String("component", "cachekit"))}
}

func (s Logger) Debug(msg string, f log.Fields) { s.emit(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f log.Fields)  { s.emit(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f log.Fields)  { s.emit(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f log.Fields) { s.emit(stdslog.LevelError, msg, f) }

func (s Logger) emit(level stdslog.Level, msg string, f log.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

func attrs(f log.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, stdslog.String(k, err.Error()))
			continue
		}
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
