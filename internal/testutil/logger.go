package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// RecordingLogger keeps every log line in memory so tests can assert on it.
type RecordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, strings.TrimSpace(fmt.Sprintf("%s %s %v", level, msg, args)))
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Contains reports whether any recorded line contains substr.
func (l *RecordingLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
