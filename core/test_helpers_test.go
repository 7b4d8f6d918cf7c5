package core

import (
	"context"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
}

func newRecordingLogger() recordingLogger {
	return recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l recordingLogger) record(level string, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l recordingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l recordingLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l recordingLogger) WithContext(context.Context) glog.Logger { return l }

func (l recordingLogger) snapshot() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), (*l.entries)...)
}

type stubLoggerProvider struct {
	logger glog.Logger
}

func (p stubLoggerProvider) GetLogger(string) glog.Logger { return p.logger }

type counterCall struct {
	name  string
	value int64
	tags  map[string]string
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   []counterCall
	histograms []string
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, counterCall{name: name, value: value, tags: tags})
}

func (m *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, name)
}
