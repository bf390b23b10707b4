package diag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with charspan field names.
type Logger struct {
	*slog.Logger
}

// NewLogger uses a text handler on stderr at info level when handler is nil.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With("run_id", runID)}
}

func (l *Logger) WithChain(chain int) *Logger {
	return &Logger{Logger: l.Logger.With("chain", chain)}
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", name)
	}
}

// LogHook writes events to a Logger. Empty columns and domain errors log at
// warn; everything else at debug.
type LogHook struct {
	Logger *Logger
}

func (h LogHook) Emit(e Event) {
	if h.Logger == nil {
		return
	}
	level := slog.LevelDebug
	switch e.Name {
	case EventEmptyColumn, EventDomainError:
		level = slog.LevelWarn
	}
	h.Logger.LogAttrs(context.Background(), level, e.Name, e.Attrs...)
}
