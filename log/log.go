// Package log provides the small leveled logger this module's instrumented
// parser writes to. Library code never logs on its own; only the Parser
// wrapper in the cert package mirrors sink diagnostics here.
package log

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
)

// A Logger logs messages with explicit priority levels.
type Logger interface {
	Err(msg string)
	Warning(msg string)
	Info(msg string)
	Debug(msg string)
}

// StdoutLogger returns a Logger that writes level-prefixed lines to stdout.
func StdoutLogger() Logger {
	return &writerLogger{w: os.Stdout}
}

type writerLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *writerLogger) logAt(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s: %s\n", level, msg)
}

func (l *writerLogger) Err(msg string)     { l.logAt("ERR", msg) }
func (l *writerLogger) Warning(msg string) { l.logAt("WARNING", msg) }
func (l *writerLogger) Info(msg string)    { l.logAt("INFO", msg) }
func (l *writerLogger) Debug(msg string)   { l.logAt("DEBUG", msg) }

// Mock is a Logger that stores all logged messages in a buffer for
// inspection by test functions.
type Mock struct {
	mu     sync.Mutex
	logged []string
}

// NewMock creates a Mock.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) record(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logged = append(m.logged, level+": "+msg)
}

func (m *Mock) Err(msg string)     { m.record("ERR", msg) }
func (m *Mock) Warning(msg string) { m.record("WARNING", msg) }
func (m *Mock) Info(msg string)    { m.record("INFO", msg) }
func (m *Mock) Debug(msg string)   { m.record("DEBUG", msg) }

// GetAll returns all messages logged since instantiation or the last Clear.
func (m *Mock) GetAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.logged))
	copy(out, m.logged)
	return out
}

// GetAllMatching returns all messages logged since instantiation or the
// last Clear whose text matches the given regexp.
func (m *Mock) GetAllMatching(reString string) []string {
	re := regexp.MustCompile(reString)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, line := range m.logged {
		if re.MatchString(line) {
			out = append(out, line)
		}
	}
	return out
}

// Clear discards all stored messages.
func (m *Mock) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logged = nil
}
