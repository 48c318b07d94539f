//go:build go1.21

package slog

import (
	"context"
	"io"
	stdslog "log/slog"

	"github.com/unkn0wn-root/cascheck"
)

var _ cascheck.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New returns a text or JSON slog logger writing to w.
func New(w io.Writer, level, format string) Logger {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = stdslog.LevelInfo
	}
	opts := &stdslog.HandlerOptions{Level: lvl}
	var h stdslog.Handler
	if format == "text" || format == "console" {
		h = stdslog.NewTextHandler(w, opts)
	} else {
		h = stdslog.NewJSONHandler(w, opts)
	}
	return Logger{L: stdslog.New(h)}
}

func (s Logger) Debug(msg string, f cascheck.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelDebug, msg, attrs(f)...)
}
func (s Logger) Info(msg string, f cascheck.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelInfo, msg, attrs(f)...)
}
func (s Logger) Warn(msg string, f cascheck.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelWarn, msg, attrs(f)...)
}
func (s Logger) Error(msg string, f cascheck.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelError, msg, attrs(f)...)
}

func attrs(f cascheck.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
