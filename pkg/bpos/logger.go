package bpos

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

// Logger wraps a *slog.Logger to reproduce spec.md §6's logger-collaborator
// line format: "<file>:<line>:<hex-event>:<formatted text>", OR-ing event
// into the caller-supplied flags word. A zero event is success; non-zero is
// a typed error.
type Logger struct {
	slog *slog.Logger
}

// NewLogger wraps an existing *slog.Logger.
func NewLogger(base *slog.Logger) *Logger {
	return &Logger{slog: base}
}

// Log records event into flags and emits a structured log line carrying the
// caller's file:line, the event in hex, and the formatted text.
func (l *Logger) Log(flags *bpevent.Flags, event bpevent.Flags, format string, args ...any) {
	flags.Set(event)

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "???", 0
	}
	text := fmt.Sprintf("%s:%d:0x%x:%s", file, line, uint32(event), fmt.Sprintf(format, args...))

	attrs := []any{
		slog.String("file", file),
		slog.Int("line", line),
		slog.String("event", fmt.Sprintf("0x%x", uint32(event))),
	}
	if event == 0 {
		l.slog.Debug(text, attrs...)
	} else {
		l.slog.Warn(text, attrs...)
	}
}
