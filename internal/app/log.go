package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// hardwireHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
type hardwireHandler struct {
	w     io.Writer
	runID string
	level slog.Level
	attrs []slog.Attr
}

func (h *hardwireHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *hardwireHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.runID, r.Message)
	if err != nil {
		return err
	}

	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *hardwireHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &hardwireHandler{
		w:     h.w,
		runID: h.runID,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *hardwireHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to logDir/hardwire.log
// and to stderr. It returns the open log file for cleanup.
func newLogger(logDir, runID string, level slog.Level) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "hardwire.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, os.Stderr)
	return slog.New(&hardwireHandler{w: w, runID: runID, level: level}), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the hardwire.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
