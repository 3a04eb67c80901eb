// Package hooks provides Logger adapters and export pipeline observers.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// ── Structured logger adapters ────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.log.Error(msg, fields...) }

// LogrusLogger adapts a logrus entry. Key/value pairs become logrus fields.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l. A nil l uses the logrus standard logger.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

// With returns a logger that always carries the given key/value pairs.
func (l *LogrusLogger) With(fields ...interface{}) *LogrusLogger {
	return &LogrusLogger{entry: l.entry.WithFields(toFields(fields))}
}

func (l *LogrusLogger) Debug(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Debug(msg)
}
func (l *LogrusLogger) Info(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Info(msg)
}
func (l *LogrusLogger) Warn(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Warn(msg)
}
func (l *LogrusLogger) Error(msg string, fields ...interface{}) {
	l.entry.WithFields(toFields(fields)).Error(msg)
}

// toFields pairs up alternating keys and values. A trailing key without a
// value is kept under "!BADKEY" like slog does.
func toFields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 >= len(kv) {
			f["!BADKEY"] = key
			break
		}
		f[key] = kv[i+1]
	}
	return f
}

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each pipeline step.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStep(_ context.Context, stepName string, img *core.ImageData) {
	h.logger.Debug("pipeline.step.start",
		"step", stepName,
		"format", img.Format,
		"width", img.Meta.Width,
		"height", img.Meta.Height,
	)
}

func (h *LoggingHook) AfterStep(_ context.Context, stepName string, img *core.ImageData, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("pipeline.step.error",
			"step", stepName,
			"duration_ms", d.Milliseconds(),
			"retryable", apperrors.IsRetryable(err),
			"error", err.Error(),
		)
		return
	}
	out := "nil"
	if img != nil {
		out = fmt.Sprintf("%dx%d %s %dB", img.Meta.Width, img.Meta.Height, img.Format, img.Meta.SizeBytes)
	}
	h.logger.Debug("pipeline.step.done",
		"step", stepName,
		"duration_ms", d.Milliseconds(),
		"output", out,
	)
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stepDurationsMs map[string]int64 // cumulative ms per step
	stepCalls       map[string]int64 // call count per step
	stepErrors      map[string]int64
	errorCategories map[string]int64

	totalThroughputB int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stepDurationsMs: make(map[string]int64),
		stepCalls:       make(map[string]int64),
		stepErrors:      make(map[string]int64),
		errorCategories: make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordProcessingTime(stepName string, d interface{ Seconds() float64 }) {
	ms := int64(d.Seconds() * 1000)
	m.mu.Lock()
	m.stepDurationsMs[stepName] += ms
	m.stepCalls[stepName]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	atomic.AddInt64(&m.totalThroughputB, bytes)
}

func (m *InMemoryMetrics) RecordError(stepName string, category string) {
	m.mu.Lock()
	m.stepErrors[stepName]++
	m.errorCategories[category]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		StepDurationsMs:  copyCounts(m.stepDurationsMs),
		StepCalls:        copyCounts(m.stepCalls),
		StepErrors:       copyCounts(m.stepErrors),
		ErrorCategories:  copyCounts(m.errorCategories),
		TotalThroughputB: atomic.LoadInt64(&m.totalThroughputB),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StepDurationsMs  map[string]int64 `json:"step_durations_ms"`
	StepCalls        map[string]int64 `json:"step_calls"`
	StepErrors       map[string]int64 `json:"step_errors"`
	ErrorCategories  map[string]int64 `json:"error_categories"`
	TotalThroughputB int64            `json:"total_throughput_bytes"`
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds pipeline events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStep(_ context.Context, _ string, _ *core.ImageData) {}

func (h *MetricsHook) AfterStep(_ context.Context, stepName string, img *core.ImageData, d time.Duration, err error) {
	h.collector.RecordProcessingTime(stepName, d)
	if err != nil {
		h.collector.RecordError(stepName, category(err))
		return
	}
	if img != nil && stepName == "encode" {
		h.collector.RecordThroughput(img.Meta.SizeBytes)
	}
}

func category(err error) string {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		return string(pe.Category)
	}
	return "unknown"
}

// compile-time interface checks
var (
	_ core.Logger           = (*SlogLogger)(nil)
	_ core.Logger           = (*LogrusLogger)(nil)
	_ core.Hook             = (*LoggingHook)(nil)
	_ core.Hook             = (*MetricsHook)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)
