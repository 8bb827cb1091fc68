package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"camkeep/internal/domain"
)

// Slog writes structured log records through log/slog.
type Slog struct {
	l *slog.Logger
}

// NewStderr creates a text logger on stderr at the given level
// ("debug", "info", "warn", "error"; anything else means info).
func NewStderr(level string) *Slog {
	return New(os.Stderr, level)
}

// New creates a text logger writing to w. Every record carries the app name and pid.
func New(w io.Writer, level string) *Slog {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Slog{l: slog.New(h).With(
		slog.String("app", "camkeep"),
		slog.Int("pid", os.Getpid()),
	)}
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (s *Slog) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *Slog) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *Slog) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *Slog) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// With returns a logger that adds args to every record.
func (s *Slog) With(args ...any) domain.Logger {
	return &Slog{l: s.l.With(args...)}
}

// Discard returns a logger that drops everything.
func Discard() *Slog {
	return &Slog{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
